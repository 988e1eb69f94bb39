package classifier

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/srv328/coffee-classification/internal/features"
	"github.com/srv328/coffee-classification/internal/models"
	"github.com/srv328/coffee-classification/internal/network"
)

var ErrTrainingDataEmpty = errors.New("knowledge base yields no training data")

// Options configures training.
type Options struct {
	SamplesPerType int
	Network        network.Config
}

func DefaultOptions() Options {
	return Options{
		SamplesPerType: features.DefaultSamplesPerType,
		Network:        network.DefaultConfig(),
	}
}

// model is an immutable trained snapshot. It is swapped in whole.
type model struct {
	schema      *features.Schema
	fingerprint string
	normalizer  *features.Normalizer
	net         *network.Network
	classes     []Class
	kbVersion   time.Time
	runID       string
	trainedAt   time.Time

	// accuracy over the whole synthetic set without dropout, not persisted
	syntheticAccuracy float64
}

func (m *model) artifact() (*Artifact, error) {
	snap, err := m.net.Snapshot()
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Version:     artifactVersion,
		RunID:       m.runID,
		TrainedAt:   m.trainedAt,
		KBVersion:   m.kbVersion,
		Fingerprint: m.fingerprint,
		Schema:      m.schema,
		Classes:     m.classes,
		Normalizer:  m.normalizer,
		Network:     snap,
	}, nil
}

func modelFromArtifact(a *Artifact) (*model, error) {
	net, err := network.FromSnapshot(a.Network)
	if err != nil {
		return nil, err
	}
	return &model{
		schema:      a.Schema,
		fingerprint: a.Fingerprint,
		normalizer:  a.Normalizer,
		net:         net,
		classes:     a.Classes,
		kbVersion:   a.KBVersion,
		runID:       a.RunID,
		trainedAt:   a.TrainedAt,
	}, nil
}

// classesOf lists the coffee types in output order, ascending by id.
func classesOf(catalog *models.Catalog) []Class {
	classes := make([]Class, 0, len(catalog.Types))
	for _, t := range catalog.Types {
		classes = append(classes, Class{ID: t.ID, Name: t.Name})
	}
	slices.SortFunc(classes, func(a, b Class) int { return cmp.Compare(a.ID, b.ID) })
	return classes
}

// fit generates the synthetic set from catalog, fits the normalizer on its
// numeric slots and trains a network on the encoded samples.
func fit(catalog *models.Catalog, opts Options, onEpoch func(network.EpochStats)) (*model, network.History, error) {
	var hist network.History

	classes := classesOf(catalog)
	if len(classes) == 0 {
		return nil, hist, fmt.Errorf("%w: no coffee types", ErrTrainingDataEmpty)
	}
	schema := features.BuildSchema(catalog)
	if schema.Width() == 0 {
		return nil, hist, fmt.Errorf("%w: no characteristics are assigned to any type", ErrTrainingDataEmpty)
	}

	index := make(map[int64]int, len(classes))
	for i, c := range classes {
		index[c.ID] = i
	}

	gen := features.NewGenerator(catalog, opts.SamplesPerType, opts.Network.Seed)
	samples := make([]features.Sample, 0, gen.Count())
	numeric := make([][]float64, 0, gen.Count())
	for s := range gen.Samples() {
		samples = append(samples, s)
		numeric = append(numeric, features.NumericValues(s.Raw, schema))
	}
	if len(samples) == 0 {
		return nil, hist, fmt.Errorf("%w: generator produced no samples", ErrTrainingDataEmpty)
	}

	norm, err := features.FitNormalizer(numeric)
	if err != nil {
		return nil, hist, fmt.Errorf("fit normalizer: %w", err)
	}

	x := make([][]float64, len(samples))
	y := make([]int, len(samples))
	for i, s := range samples {
		x[i] = features.Encode(s.Raw, schema, norm)
		y[i] = index[s.Label]
	}

	net, hist, err := network.Train(x, y, len(classes), opts.Network, onEpoch)
	if err != nil {
		return nil, hist, fmt.Errorf("train network: %w", err)
	}

	_, acc, err := net.Evaluate(x, y)
	if err != nil {
		return nil, hist, fmt.Errorf("evaluate network: %w", err)
	}

	return &model{
		schema:            schema,
		fingerprint:       schema.Fingerprint(),
		normalizer:        norm,
		net:               net,
		classes:           classes,
		kbVersion:         catalog.Version,
		syntheticAccuracy: acc,
	}, hist, nil
}
