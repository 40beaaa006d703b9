package ingest

import "github.com/cozy-creator/image-ingest/internal/utils/hashutil"

func hashOf(data []byte) string {
	return hashutil.Blake3Hash(data)
}
