package storage

import "strings"

// NewStorage creates an ObjectStorage instance based on the configuration.
// MinIO, R2, and plain S3 all go through the S3-compatible adapter.
func NewStorage(cfg *Config) (*S3Store, error) {
	if cfg.Type == "" || cfg.Type == "minio" {
		cfg.Type = detectStorageType(cfg.Endpoint)
	}
	return NewS3Store(cfg)
}

// detectStorageType attempts to detect the storage type from the endpoint.
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)
	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeCompatible
	}
}
