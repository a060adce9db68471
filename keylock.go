package tiercache

import (
	"hash/maphash"
	"sync"
	"sync/atomic"
)

const numKeyStripes = 256

// keyStripes orders writers of the same key across tiers. Set, Delete and
// promotion of a key hold its stripe lock while they touch the tiers.
//
// Each stripe also carries a generation that is odd while a writer holds the
// lock. A Get samples the generation before reading; its promotion is only
// applied if the generation is unchanged, so a value read before a
// concurrent Set never overwrites the newer value in a faster tier.
type keyStripes struct {
	seed    maphash.Seed
	mu      [numKeyStripes]sync.Mutex
	version [numKeyStripes]atomic.Uint64
}

func newKeyStripes() *keyStripes {
	return &keyStripes{seed: maphash.MakeSeed()}
}

func (k *keyStripes) stripe(key string) int {
	return int(maphash.String(k.seed, key) % numKeyStripes)
}

// snapshot returns the current generation of key's stripe.
func (k *keyStripes) snapshot(key string) uint64 {
	return k.version[k.stripe(key)].Load()
}

// write runs fn as a writer of key.
func (k *keyStripes) write(key string, fn func()) {
	i := k.stripe(key)
	k.mu[i].Lock()
	defer k.mu[i].Unlock()

	k.version[i].Add(1)
	defer k.version[i].Add(1)
	fn()
}

// writeIfUnchanged runs fn as a writer of key only if no writer started
// since gen was sampled. It reports whether fn ran.
func (k *keyStripes) writeIfUnchanged(key string, gen uint64, fn func()) bool {
	if gen%2 == 1 {
		return false
	}

	i := k.stripe(key)
	k.mu[i].Lock()
	defer k.mu[i].Unlock()

	if k.version[i].Load() != gen {
		return false
	}
	k.version[i].Add(1)
	defer k.version[i].Add(1)
	fn()
	return true
}

// writeAll runs fn while holding every stripe, as a writer of every key.
func (k *keyStripes) writeAll(fn func()) {
	for i := range k.mu {
		k.mu[i].Lock()
		k.version[i].Add(1)
	}
	defer func() {
		for i := range k.mu {
			k.version[i].Add(1)
			k.mu[i].Unlock()
		}
	}()
	fn()
}
