package similarity

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// NumTiers is the number of tiers whose membership is tracked.
const NumTiers = 3

// Candidate is a key whose query text scored at or above the threshold.
type Candidate struct {
	Key        string
	QueryText  string
	Similarity float64
	// Tiers lists the tiers (fastest first) holding a live copy.
	Tiers []int
}

type document struct {
	key     string
	text    string
	tokens  []string
	expires [NumTiers]time.Time
}

// Index is safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	ids      map[string]uint32
	docs     map[uint32]*document
	postings map[string]*roaring.Bitmap
	tiers    [NumTiers]*roaring.Bitmap
	nextID   uint32
}

// New creates an empty index.
func New() *Index {
	idx := &Index{
		ids:      make(map[string]uint32),
		docs:     make(map[uint32]*document),
		postings: make(map[string]*roaring.Bitmap),
	}
	for i := range idx.tiers {
		idx.tiers[i] = roaring.New()
	}
	return idx
}

// Add records that tier holds key with the given query text until expiresAt.
func (idx *Index) Add(key, text string, tier int, expiresAt time.Time) {
	if tier < 0 || tier >= NumTiers {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	id, ok := idx.ids[key]
	if ok && idx.docs[id].text != text {
		idx.unpostLocked(id)
		idx.docs[id].text = text
		idx.docs[id].tokens = Tokenize(text)
		idx.postLocked(id)
	}
	if !ok {
		id = idx.nextID
		idx.nextID++
		idx.ids[key] = id
		idx.docs[id] = &document{key: key, text: text, tokens: Tokenize(text)}
		idx.postLocked(id)
	}

	idx.docs[id].expires[tier] = expiresAt
	idx.tiers[tier].Add(id)
}

// Remove records that tier no longer holds key.
func (idx *Index) Remove(key string, tier int) {
	if tier < 0 || tier >= NumTiers {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	id, ok := idx.ids[key]
	if !ok {
		return
	}
	idx.tiers[tier].Remove(id)
	idx.docs[id].expires[tier] = time.Time{}
	if !idx.heldLocked(id) {
		idx.dropLocked(id)
	}
}

// Delete drops key from every tier.
func (idx *Index) Delete(key string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if id, ok := idx.ids[key]; ok {
		for _, bm := range idx.tiers {
			bm.Remove(id)
		}
		idx.dropLocked(id)
	}
}

// ClearTier records that tier was emptied.
func (idx *Index) ClearTier(tier int) {
	if tier < 0 || tier >= NumTiers {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	cleared := idx.tiers[tier]
	idx.tiers[tier] = roaring.New()

	others := roaring.New()
	for i, bm := range idx.tiers {
		if i != tier {
			others.Or(bm)
		}
	}

	// Documents held only by the cleared tier leave the index.
	orphans := roaring.AndNot(cleared, others)
	it := orphans.Iterator()
	for it.HasNext() {
		idx.dropLocked(it.Next())
	}

	it = cleared.Iterator()
	for it.HasNext() {
		if d, ok := idx.docs[it.Next()]; ok {
			d.expires[tier] = time.Time{}
		}
	}
}

// Len returns the number of indexed keys.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Search scores every live document against text and returns those scoring
// at or above threshold, ordered by descending similarity and then by key.
func (idx *Index) Search(text string, threshold float64, now time.Time) []Candidate {
	want := Tokenize(text)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []Candidate
	consider := func(id uint32) {
		d := idx.docs[id]
		tiers := idx.liveTiersLocked(id, now)
		if len(tiers) == 0 {
			return
		}
		score := Jaccard(want, d.tokens)
		if score >= threshold {
			out = append(out, Candidate{Key: d.key, QueryText: d.text, Similarity: score, Tiers: tiers})
		}
	}

	if threshold <= 0 {
		for id := range idx.docs {
			consider(id)
		}
	} else {
		// A document sharing no token scores 0 and cannot reach a positive threshold.
		candidates := roaring.New()
		for _, tok := range want {
			if bm, ok := idx.postings[tok]; ok {
				candidates.Or(bm)
			}
		}
		it := candidates.Iterator()
		for it.HasNext() {
			consider(it.Next())
		}
	}

	slices.SortFunc(out, func(a, b Candidate) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return out
}

func (idx *Index) liveTiersLocked(id uint32, now time.Time) []int {
	var tiers []int
	d := idx.docs[id]
	for i, bm := range idx.tiers {
		if bm.Contains(id) && now.Before(d.expires[i]) {
			tiers = append(tiers, i)
		}
	}
	return tiers
}

func (idx *Index) heldLocked(id uint32) bool {
	for _, bm := range idx.tiers {
		if bm.Contains(id) {
			return true
		}
	}
	return false
}

func (idx *Index) postLocked(id uint32) {
	for _, tok := range idx.docs[id].tokens {
		bm, ok := idx.postings[tok]
		if !ok {
			bm = roaring.New()
			idx.postings[tok] = bm
		}
		bm.Add(id)
	}
}

func (idx *Index) unpostLocked(id uint32) {
	for _, tok := range idx.docs[id].tokens {
		if bm, ok := idx.postings[tok]; ok {
			bm.Remove(id)
			if bm.IsEmpty() {
				delete(idx.postings, tok)
			}
		}
	}
}

func (idx *Index) dropLocked(id uint32) {
	d, ok := idx.docs[id]
	if !ok {
		return
	}
	idx.unpostLocked(id)
	delete(idx.ids, d.key)
	delete(idx.docs, id)
}
