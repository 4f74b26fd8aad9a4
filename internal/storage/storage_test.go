package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"echoping/internal/address"
	"echoping/internal/models"
)

func TestAddressStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "addresses.json")
	store, err := NewAddressStore(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.Load(); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("Load on empty store err = %v, want ErrNoAddress", err)
	}

	want := address.Address{192, 168, 0, 17}
	if err := store.Store(want); err != nil {
		t.Fatal(err)
	}
	got, err := store.Load()
	if err != nil || got != want {
		t.Fatalf("Load() = %v %v, want %v", got, err, want)
	}

	reopened, err := NewAddressStore(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err = reopened.Load()
	if err != nil || got != want {
		t.Errorf("Load after reopen = %v %v, want %v", got, err, want)
	}
}

func TestAddressStoreFileLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addresses.json")
	store, err := NewAddressStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Store(address.Address{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]map[string]string{"addresses": {"address": "1.2.3.4"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("file content mismatch (-want +got):\n%s", diff)
	}
}

func TestAddressStoreMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addresses.json")
	if err := os.WriteFile(path, []byte(`{"addresses":{"address":"300.1.1.1"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := NewAddressStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); !errors.Is(err, address.ErrMalformed) {
		t.Errorf("Load err = %v, want ErrMalformed", err)
	}
}

func TestAddressStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addresses.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewAddressStore(path); err == nil {
		t.Errorf("NewAddressStore accepted corrupt file")
	}
}

func TestResultStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	store, err := NewResultStorage(path, 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Latest(); ok {
		t.Fatalf("Latest on empty storage reported a result")
	}
	if got := store.HistoryN(10); len(got) != 0 {
		t.Fatalf("HistoryN on empty storage = %v", got)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var all []models.Result
	for i := 1; i <= 5; i++ {
		r := models.Result{
			Target:     address.Address{10, 0, 0, 1},
			Outcome:    models.Success(time.Duration(i) * time.Millisecond),
			StartedAt:  base.Add(time.Duration(i) * time.Second),
			Generation: 1,
			Seq:        uint64(i),
		}
		if i == 4 {
			r.Outcome = models.Unreachable
		}
		all = append(all, r)
		if err := store.Append(r); err != nil {
			t.Fatal(err)
		}
	}

	opt := cmp.AllowUnexported(models.ProbeResult{})
	if diff := cmp.Diff(all[2:], store.HistoryN(0), opt); diff != "" {
		t.Errorf("HistoryN(0) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(all[3:], store.HistoryN(2), opt); diff != "" {
		t.Errorf("HistoryN(2) mismatch (-want +got):\n%s", diff)
	}
	latest, ok := store.Latest()
	if !ok || latest.Seq != 5 {
		t.Errorf("Latest = %+v %v", latest, ok)
	}

	reopened, err := NewResultStorage(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(all[3:], reopened.HistoryN(0), opt); diff != "" {
		t.Errorf("reopened history mismatch (-want +got):\n%s", diff)
	}
}
