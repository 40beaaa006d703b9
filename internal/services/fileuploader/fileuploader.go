package fileuploader

import (
	"context"
	"fmt"
	"sync"

	"github.com/cozy-creator/image-ingest/internal/services/filestorage"
	"github.com/gammazero/workerpool"
	"go.uber.org/multierr"
)

// Uploader writes batches of objects through a bounded worker pool shared by
// every request, so concurrent uploads cannot open unbounded storage writes.
type Uploader struct {
	wp          *workerpool.WorkerPool
	filestorage filestorage.FileStorage
}

func NewFileUploader(filestorage filestorage.FileStorage, maxWorkers int) *Uploader {
	wp := workerpool.New(maxWorkers)

	return &Uploader{
		wp:          wp,
		filestorage: filestorage,
	}
}

func (w *Uploader) Stop() {
	w.wp.StopWait()
}

// UploadAll writes every file and returns their URLs in input order. It waits
// for all writes to settle; if any of them failed, the ones that succeeded are
// removed again and the combined error is returned.
func (w *Uploader) UploadAll(ctx context.Context, files []filestorage.FileInfo) ([]string, error) {
	if w.filestorage == nil {
		return nil, fmt.Errorf("file storage is not configured")
	}

	var (
		wg   sync.WaitGroup
		urls = make([]string, len(files))
		errs = make([]error, len(files))
	)

	for i, file := range files {
		i, file := i, file
		wg.Add(1)
		w.wp.Submit(func() {
			defer wg.Done()
			urls[i], errs[i] = w.filestorage.Upload(ctx, file)
		})
	}
	wg.Wait()

	var err error
	for i, uploadErr := range errs {
		if uploadErr != nil {
			err = multierr.Append(err, fmt.Errorf("upload %s: %w", files[i].Key, uploadErr))
		}
	}
	if err == nil {
		return urls, nil
	}

	var written []string
	for i, uploadErr := range errs {
		if uploadErr == nil {
			written = append(written, files[i].Key)
		}
	}
	if cleanupErr := w.DeleteAll(context.WithoutCancel(ctx), written); cleanupErr != nil {
		err = multierr.Append(err, fmt.Errorf("cleanup: %w", cleanupErr))
	}

	return nil, err
}

// DeleteAll removes every key, continuing past failures.
func (w *Uploader) DeleteAll(ctx context.Context, keys []string) error {
	if w.filestorage == nil || len(keys) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		errs = make([]error, len(keys))
	)

	for i, key := range keys {
		i, key := i, key
		wg.Add(1)
		w.wp.Submit(func() {
			defer wg.Done()
			if err := w.filestorage.Delete(ctx, key); err != nil {
				errs[i] = fmt.Errorf("delete %s: %w", key, err)
			}
		})
	}
	wg.Wait()

	return multierr.Combine(errs...)
}
