package objectstore

import (
	"context"

	"github.com/blockengine/blockengine/blockerr"
)

// registryPage is the fixed page index of the named-root table.
const registryPage = 1

const rootEntrySize = 16 // u64 name_hash, u64 handle

func (o *ObjectStore) rootOffset(i int) int64 {
	return registryPage*o.pageSize + int64(i)*rootEntrySize
}

// Register finds the first empty slot in the named-root table and writes
// (name, handle) into it. Returns Overflow if the table is full.
func (o *ObjectStore) Register(ctx context.Context, name string, handle uint64) error {
	hash := nameHash(name)
	for i := 0; i < o.maxRegistered; i++ {
		a, err := o.store.Access(ctx, o.rootOffset(i), rootEntrySize, true)
		if err != nil {
			return err
		}
		if _, err := a.ReadUint64(); err != nil { // existing hash, discarded
			a.Close()
			return err
		}
		existingHandle, err := a.ReadUint64()
		if err != nil {
			a.Close()
			return err
		}
		if existingHandle == 0 {
			if err := a.Seek(o.rootOffset(i)); err != nil {
				a.Close()
				return err
			}
			if err := a.WriteUint64(hash); err != nil {
				a.Close()
				return err
			}
			if err := a.WriteUint64(handle); err != nil {
				a.Close()
				return err
			}
			return a.Close()
		}
		a.Close()
	}
	return blockerr.New(blockerr.Overflow, "named-root registry is full")
}

// Unregister zeroes the handle of the first entry whose name matches.
func (o *ObjectStore) Unregister(ctx context.Context, name string) error {
	hash := nameHash(name)
	for i := 0; i < o.maxRegistered; i++ {
		a, err := o.store.Access(ctx, o.rootOffset(i), rootEntrySize, true)
		if err != nil {
			return err
		}
		existingHash, err := a.ReadUint64()
		if err != nil {
			a.Close()
			return err
		}
		existingHandle, err := a.ReadUint64()
		if err != nil {
			a.Close()
			return err
		}
		if existingHandle != 0 && existingHash == hash {
			if err := a.Seek(o.rootOffset(i) + 8); err != nil {
				a.Close()
				return err
			}
			if err := a.WriteUint64(0); err != nil {
				a.Close()
				return err
			}
			return a.Close()
		}
		a.Close()
	}
	return nil // unregistering a name that was never registered is a no-op
}

// GetObject returns the handle registered under name, or KeyNull if absent.
func (o *ObjectStore) GetObject(ctx context.Context, name string) (uint64, error) {
	hash := nameHash(name)
	for i := 0; i < o.maxRegistered; i++ {
		a, err := o.store.Access(ctx, o.rootOffset(i), rootEntrySize, false)
		if err != nil {
			return KeyNull, err
		}
		existingHash, err := a.ReadUint64()
		if err != nil {
			a.Close()
			return KeyNull, err
		}
		existingHandle, err := a.ReadUint64()
		a.Close()
		if err != nil {
			return KeyNull, err
		}
		if existingHandle != 0 && existingHash == hash {
			return existingHandle, nil
		}
	}
	return KeyNull, nil
}
