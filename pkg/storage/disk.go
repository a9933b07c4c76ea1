// Package storage abstracts the blob store used for webhook payload archives.
//
// Two drivers are available:
//   - "local" — local filesystem (default)
//   - "s3"    — S3-compatible object storage (AWS S3, MinIO, R2)
//
// Boot once in internal/server, then write through the default disk:
//
//	storage.Connect()
//	storage.Put(ctx, "webhooks/stripe/evt_123.json", body)
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/shashiranjanraj/vastra/config"
	"github.com/shashiranjanraj/vastra/pkg/logger"
)

// Disk is the blob store driver interface.
type Disk interface {
	// Put writes content to path, creating parents as needed.
	Put(ctx context.Context, path string, content []byte) error

	// Get returns the full content of the object at path.
	Get(ctx context.Context, path string) ([]byte, error)

	// Exists reports whether an object exists at path.
	Exists(ctx context.Context, path string) bool

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error

	// List returns object paths under prefix, recursively.
	List(ctx context.Context, prefix string) ([]string, error)
}

var (
	managerMu   sync.RWMutex
	disks       = map[string]Disk{}
	defaultDisk string
)

// Connect boots the storage manager. The local disk is always available;
// the s3 disk is registered only when a bucket is configured.
func Connect() {
	managerMu.Lock()
	defer managerMu.Unlock()

	defaultDisk = config.StorageDefault()
	disks["local"] = newLocalDisk()

	if config.StorageS3Bucket() != "" {
		d, err := newS3Disk()
		if err != nil {
			logger.Warn("storage: s3 disk disabled", "error", err)
		} else {
			disks["s3"] = d
		}
	}
}

// Use returns the named disk. Driver names are "local" and "s3".
func Use(name string) Disk {
	managerMu.RLock()
	d, ok := disks[name]
	managerMu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("storage: disk %q is not configured", name))
	}
	return d
}

// RegisterDisk plugs in a custom Disk implementation, mainly for tests.
func RegisterDisk(name string, d Disk) {
	managerMu.Lock()
	disks[name] = d
	managerMu.Unlock()
}

func defaultD() Disk { return Use(defaultDisk) }

// Put writes content to path on the default disk.
func Put(ctx context.Context, path string, content []byte) error {
	return defaultD().Put(ctx, path, content)
}

// Get returns object content from the default disk.
func Get(ctx context.Context, path string) ([]byte, error) {
	return defaultD().Get(ctx, path)
}

// Exists reports whether path exists on the default disk.
func Exists(ctx context.Context, path string) bool { return defaultD().Exists(ctx, path) }

// Delete removes path from the default disk.
func Delete(ctx context.Context, path string) error { return defaultD().Delete(ctx, path) }

// List returns object paths under prefix on the default disk.
func List(ctx context.Context, prefix string) ([]string, error) {
	return defaultD().List(ctx, prefix)
}
