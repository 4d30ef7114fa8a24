package ldb

import "github.com/syndtr/goleveldb/leveldb/opt"

// Options returns the leveldb options used to open databases. It returns a
// fresh copy on every call so callers may adjust it.
var Options = func() *opt.Options {
	return &opt.Options{
		Compression:            opt.NoCompression,
		BlockCacheCapacity:     64 * opt.MiB,
		WriteBuffer:            32 * opt.MiB,
		DisableSeeksCompaction: true,
	}
}
