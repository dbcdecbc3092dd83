package strategyconfig

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// Load reads YAML file and returns Catalog with raw bytes
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (*Catalog, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	cat, err := Parse(data)
	if err != nil {
		return nil, data, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, data, nil
}

// Parse decodes, defaults and validates a catalog document
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(&cat); err != nil {
		return nil, err
	}

	if err := applyDefaults(&cat); err != nil {
		return nil, err
	}

	if err := Validate(&cat); err != nil {
		return nil, err
	}

	return &cat, nil
}

func applyDefaults(cat *Catalog) error {
	if err := defaults.Set(&cat.Merge); err != nil {
		return fmt.Errorf("merge defaults: %w", err)
	}
	if err := defaults.Set(&cat.Evaluation); err != nil {
		return fmt.Errorf("evaluation defaults: %w", err)
	}
	if err := defaults.Set(&cat.ABTest); err != nil {
		return fmt.Errorf("ab_test defaults: %w", err)
	}
	for i := range cat.Families {
		if err := defaults.Set(&cat.Families[i]); err != nil {
			return fmt.Errorf("families[%d] defaults: %w", i, err)
		}
	}
	// weight 생략 = 1
	for i := range cat.Algorithms {
		if cat.Algorithms[i].Weight == 0 {
			cat.Algorithms[i].Weight = 1
		}
	}
	return nil
}

// Hash generates SHA256 hash from Catalog (canonical JSON)
// 주의: map 대신 slice 사용으로 해시 재현성 보장
func Hash(cat *Catalog) (string, error) {
	jsonBytes, err := json.Marshal(cat)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// NewSnapshot creates a snapshot for audit
func NewSnapshot(cat *Catalog, yamlData []byte, path string) (*Snapshot, error) {
	hash, err := Hash(cat)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Hash:      hash,
		YAML:      string(yamlData),
		CatalogID: cat.Meta.CatalogID,
		Version:   cat.Meta.Version,
		Path:      path,
		LoadedAt:  time.Now(),
	}, nil
}

// Registrar is the part of the algorithm registry the bootstrap needs
type Registrar interface {
	Register(ctx context.Context, cfg contracts.AlgorithmConfig) error
}

// Bootstrap registers the catalog's algorithm versions that the registry
// does not know yet and returns how many were added. Versions already
// registered are left untouched, including their active flag.
func Bootstrap(ctx context.Context, r Registrar, cat *Catalog) (int, error) {
	added := 0
	for _, cfg := range cat.Algorithms {
		err := r.Register(ctx, cfg.Clone())
		if errors.Is(err, contracts.ErrDuplicateVersion) {
			continue
		}
		if err != nil {
			return added, fmt.Errorf("bootstrap %s: %w", cfg.Key(), err)
		}
		added++
	}
	return added, nil
}
