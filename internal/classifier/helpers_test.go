package classifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/srv328/coffee-classification/internal/models"
	"github.com/srv328/coffee-classification/internal/network"
)

const (
	acidityID int64 = 1
	roastID   int64 = 2
	bodyID    int64 = 3

	espressoID int64 = 10
	lungoID    int64 = 11
)

var baseVersion = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testCatalog() *models.Catalog {
	return &models.Catalog{
		Types: []models.CoffeeType{
			{ID: lungoID, Name: "Lungo"},
			{ID: espressoID, Name: "Espresso"},
		},
		Characteristics: []models.Characteristic{
			{ID: acidityID, Name: "acidity", Kind: models.KindNumeric},
			{ID: roastID, Name: "roast_level", Kind: models.KindCategorical, Values: []string{"dark", "light", "medium"}},
			{ID: bodyID, Name: "body", Kind: models.KindNumeric},
		},
		Numeric: []models.NumericAssignment{
			{CoffeeTypeID: espressoID, CharacteristicID: acidityID, MinValue: 6, MaxValue: 9},
			{CoffeeTypeID: lungoID, CharacteristicID: acidityID, MinValue: 1, MaxValue: 3},
		},
		Categorical: []models.CategoricalAssignment{
			{CoffeeTypeID: espressoID, CharacteristicID: roastID, Value: "dark"},
			{CoffeeTypeID: lungoID, CharacteristicID: roastID, Value: "light"},
		},
		Version: baseVersion,
	}
}

func testOptions() Options {
	cfg := network.DefaultConfig()
	cfg.Epochs = 60
	cfg.LearningRate = 0.01
	cfg.Hidden = []int{16, 8}
	return Options{SamplesPerType: 40, Network: cfg}
}

type fakeSource struct {
	mu      sync.Mutex
	catalog *models.Catalog
	loads   int
	err     error
}

func newFakeSource(c *models.Catalog) *fakeSource {
	return &fakeSource{catalog: c}
}

func (f *fakeSource) set(c *models.Catalog) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog = c
}

func (f *fakeSource) LoadCatalog(context.Context) (*models.Catalog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.loads++
	return f.catalog, nil
}

func (f *fakeSource) LastModified(context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return time.Time{}, f.err
	}
	return f.catalog.Version, nil
}

type fakeRuns struct {
	mu       sync.Mutex
	created  []models.TrainingRun
	finished []models.TrainingRun
}

func (f *fakeRuns) CreateRun(_ context.Context, run *models.TrainingRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *run)
	return nil
}

func (f *fakeRuns) FinishRun(_ context.Context, run *models.TrainingRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, *run)
	return nil
}

func (f *fakeRuns) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.finished)
}

func (f *fakeRuns) last() models.TrainingRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished[len(f.finished)-1]
}

type failingStore struct{}

func (failingStore) Load() (*Artifact, error) { return nil, ErrArtifactNotFound }
func (failingStore) Save(*Artifact) error     { return errors.New("disk full") }
func (failingStore) Path() string             { return "unwritable" }

type recordingObserver struct {
	mu       sync.Mutex
	states   []State
	statuses []string
}

func (o *recordingObserver) ObserveState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *recordingObserver) ObserveTraining(status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}
