package memory

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFixture is the YAML shape accepted by Seed.
//
//	people:
//	  - id: josh
//	    name: Josh
//	    traits: {drink: peppermint tea}
//	    facts: ["works night shifts"]
//	globalFacts: ["the house has two cats"]
type SeedFixture struct {
	People []struct {
		ID     string         `yaml:"id"`
		Name   string         `yaml:"name"`
		Traits map[string]any `yaml:"traits"`
		Facts  []string       `yaml:"facts"`
	} `yaml:"people"`
	GlobalFacts []string `yaml:"globalFacts"`
}

// Seed applies a fixture through the public store API. Fact dedup makes
// repeated seeding a no-op.
func Seed(ctx context.Context, s *Store, r io.Reader) error {
	var fx SeedFixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil && err != io.EOF {
		return fmt.Errorf("decode seed fixture: %w", err)
	}
	for _, p := range fx.People {
		if p.ID == "" {
			return fmt.Errorf("seed person %q has no id", p.Name)
		}
		if err := s.UpsertPerson(ctx, p.ID, p.Name, p.Traits); err != nil {
			return err
		}
		for _, f := range p.Facts {
			if err := s.AddFact(ctx, p.ID, f, "seed", 1); err != nil {
				return err
			}
		}
	}
	for _, f := range fx.GlobalFacts {
		if err := s.AddFact(ctx, "", f, "seed", 1); err != nil {
			return err
		}
	}
	return nil
}

func SeedFile(ctx context.Context, s *Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed fixture: %w", err)
	}
	defer f.Close()
	return Seed(ctx, s, f)
}
