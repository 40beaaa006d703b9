package templates

import "os"

const configTemplate = `
environment: dev
filesystem_type: local

db:
  driver: sqlite
  dsn: "file:./data/images.db"

upload:
  max_file_size: 10485760
  allowed_types: ["image/jpeg", "image/png", "image/webp"]
  jpeg_quality: 85
  variant_workers: 4
  upload_workers: 8

# s3:
#   endpoint_url: "https://nyc3.digitaloceanspaces.com"
#   region_name: "nyc3"
#   bucket_name: "catalog-images"
#   folder: "public"
#   vanity_url: "https://images.example.com"

# pulsar:
#   url: "pulsar://localhost:6650"
`

func GetConfigTemplate() string {
	return configTemplate
}

func WriteConfig(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(GetConfigTemplate())
	if err != nil {
		return err
	}

	return nil
}
