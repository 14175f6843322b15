package service

import (
	"context"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/learnmatch/internal/domain/features"
	"github.com/okian/learnmatch/internal/domain/types"
)

// LoadSeedFile reads labelled profiles from a YAML (or JSON) document of the
// form {profiles: [...]} and returns them in file order.
func LoadSeedFile(_ context.Context, path string) ([]features.FeatureVector, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load seed file %s: %w", path, err)
	}

	var doc types.SeedFile
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}

	out := make([]features.FeatureVector, 0, len(doc.Profiles))
	for i := range doc.Profiles {
		v, err := doc.Profiles[i].ToVector()
		if err != nil {
			return nil, fmt.Errorf("seed file %s entry %d: %w", path, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
