package indexcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzsearch/internal/index"
	"github.com/524D/mzsearch/internal/proteomics"
)

func tinyIndex(fp index.Fingerprint) *index.Index {
	return &index.Index{
		Fingerprint:   fp,
		BinsPerDalton: 100,
		Peptides: []proteomics.CompactPeptide{{
			BaseHash:         proteomics.SequenceHash("GG"),
			NTerminalMasses:  []float64{57.02146},
			CTerminalMasses:  []float64{57.02146},
			MonoisotopicMass: 132.05349,
		}},
		Keys:       []int32{5702, 7503},
		Candidates: [][]int32{{0}, {0}},
	}
}

func fingerprint(text string) index.Fingerprint {
	return sha256.Sum256([]byte(text))
}

func TestConcurrentCallersBuildOnce(t *testing.T) {
	c := New(nil, LocalStore{Root: t.TempDir()})
	params := []byte("protease: trypsin\n")
	fp := fingerprint(string(params))

	var mu sync.Mutex
	calls := 0
	build := func(ctx context.Context) (*index.Index, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		return tinyIndex(fp), nil
	}

	const workers = 8
	got := make([]*index.Index, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x, err := c.GetOrBuild(context.Background(), params, fp, build)
			assert.NoError(t, err)
			got[i] = x
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	assert.EqualValues(t, 1, c.Builds())
	for _, x := range got {
		assert.Same(t, got[0], x)
	}
}

func TestStoredIndexIsReused(t *testing.T) {
	store := LocalStore{Root: t.TempDir()}
	params := []byte("protease: trypsin\n")
	fp := fingerprint(string(params))
	want := tinyIndex(fp)

	_, err := New(nil, store).GetOrBuild(context.Background(), params, fp,
		func(context.Context) (*index.Index, error) { return want, nil })
	require.NoError(t, err)

	c := New(nil, store)
	got, err := c.GetOrBuild(context.Background(), params, fp,
		func(context.Context) (*index.Index, error) {
			t.Fatal("index was rebuilt")
			return nil, nil
		})
	require.NoError(t, err)
	assert.Zero(t, c.Builds())
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stored index differs (-want +got):\n%s", diff)
	}
}

func TestLaterStoresAreSearched(t *testing.T) {
	first, second := LocalStore{Root: t.TempDir()}, LocalStore{Root: t.TempDir()}
	params := []byte("partition: 1\n")
	fp := fingerprint(string(params))
	_, err := New(nil, second).GetOrBuild(context.Background(), params, fp,
		func(context.Context) (*index.Index, error) { return tinyIndex(fp), nil })
	require.NoError(t, err)

	c := New(nil, first, second)
	_, err = c.GetOrBuild(context.Background(), params, fp,
		func(context.Context) (*index.Index, error) { return nil, errors.New("unexpected build") })
	require.NoError(t, err)
	assert.Zero(t, c.Builds())
}

func putArtifacts(t *testing.T, s Store, loc string, params []byte, x *index.Index) {
	t.Helper()
	var peps, frags bytes.Buffer
	require.NoError(t, x.WritePeptideIndex(&peps))
	require.NoError(t, x.WriteFragmentIndex(&frags))
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, loc, PeptideFile, peps.Bytes()))
	require.NoError(t, s.Put(ctx, loc, FragmentFile, frags.Bytes()))
	require.NoError(t, s.Put(ctx, loc, ParamsFile, params))
}

func TestFingerprintMismatchRebuilds(t *testing.T) {
	store := LocalStore{Root: t.TempDir()}
	params := []byte("maxMissedCleavages: 2\n")
	fp := fingerprint(string(params))
	stale := tinyIndex(fingerprint("maxMissedCleavages: 1\n"))
	putArtifacts(t, store, Location(fp), params, stale)

	c := New(nil, store)
	x, err := c.GetOrBuild(context.Background(), params, fp,
		func(context.Context) (*index.Index, error) { return tinyIndex(fp), nil })
	require.NoError(t, err)
	assert.Equal(t, fp, x.Fingerprint)
	assert.EqualValues(t, 1, c.Builds())

	// the rebuilt entry replaced the stale one
	c = New(nil, store)
	_, err = c.GetOrBuild(context.Background(), params, fp,
		func(context.Context) (*index.Index, error) { return nil, errors.New("unexpected build") })
	assert.NoError(t, err)
}

func TestParamsMismatchRebuilds(t *testing.T) {
	store := LocalStore{Root: t.TempDir()}
	params := []byte("ionTypes: [b, y]\n")
	fp := fingerprint(string(params))
	putArtifacts(t, store, Location(fp), []byte("ionTypes: [c, zdot]\n"), tinyIndex(fp))

	c := New(nil, store)
	_, err := c.GetOrBuild(context.Background(), params, fp,
		func(context.Context) (*index.Index, error) { return tinyIndex(fp), nil })
	require.NoError(t, err)
	assert.EqualValues(t, 1, c.Builds())
}

func TestMissingArtifactIsResourceError(t *testing.T) {
	store := LocalStore{Root: t.TempDir()}
	params := []byte("decoys: true\n")
	fp := fingerprint(string(params))
	require.NoError(t, store.Put(context.Background(), Location(fp), ParamsFile, params))

	_, err := New(nil, store).GetOrBuild(context.Background(), params, fp,
		func(context.Context) (*index.Index, error) { return tinyIndex(fp), nil })
	var re *ResourceError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, fp, re.Fingerprint)
	assert.Contains(t, re.Location, Location(fp))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCorruptArtifactIsResourceError(t *testing.T) {
	store := LocalStore{Root: t.TempDir()}
	params := []byte("decoys: false\n")
	fp := fingerprint(string(params))
	putArtifacts(t, store, Location(fp), params, tinyIndex(fp))
	require.NoError(t, store.Put(context.Background(), Location(fp), FragmentFile, []byte("garbage")))

	_, err := New(nil, store).GetOrBuild(context.Background(), params, fp,
		func(context.Context) (*index.Index, error) { return tinyIndex(fp), nil })
	var re *ResourceError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, index.ErrBadMagic)
}

func TestBuildErrorIsReturned(t *testing.T) {
	boom := errors.New("boom")
	c := New(nil)
	_, err := c.GetOrBuild(context.Background(), nil, index.Fingerprint{1},
		func(context.Context) (*index.Index, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Builds())
}
