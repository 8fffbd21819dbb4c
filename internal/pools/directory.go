package pools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/store"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Directory is the read-only pool profile lookup
type Directory interface {
	GetPool(ctx context.Context, poolId string) (*models.Pool, error)
	ListPoolIds(ctx context.Context) ([]string, error)
}

type poolsFile struct {
	Pools []models.Pool `yaml:"pools"`
}

// StaticDirectory serves pools from memory. FileDirectory fills one from YAML.
type StaticDirectory struct {
	mu    sync.RWMutex
	pools map[string]models.Pool
}

var _ Directory = (*StaticDirectory)(nil)

func NewStaticDirectory(pools ...models.Pool) *StaticDirectory {
	d := &StaticDirectory{}
	d.replace(pools)
	return d
}

func (d *StaticDirectory) replace(pools []models.Pool) {
	m := make(map[string]models.Pool, len(pools))
	for _, p := range pools {
		m[p.Id] = p
	}
	d.mu.Lock()
	d.pools = m
	d.mu.Unlock()
}

func (d *StaticDirectory) GetPool(ctx context.Context, poolId string) (*models.Pool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.pools[poolId]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrPoolNotFound, poolId)
	}
	return &p, nil
}

func (d *StaticDirectory) ListPoolIds(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.pools))
	for id := range d.pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// FileDirectory caches pool profiles loaded from a YAML file.
type FileDirectory struct {
	*StaticDirectory
	path string
}

func NewFileDirectory(poolsFile string) (*FileDirectory, error) {
	path := poolsFile
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, poolsFile)
	}

	d := &FileDirectory{StaticDirectory: NewStaticDirectory(), path: path}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload re-reads the file. The cache is left untouched when the file is invalid.
func (d *FileDirectory) Reload() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", d.path, err)
	}

	pools, err := ParsePools(data)
	if err != nil {
		return fmt.Errorf("unable to parse %s: %w", d.path, err)
	}

	d.replace(pools)
	zap.L().Info("Loaded pool profiles", zap.String("file", d.path), zap.Int("count", len(pools)))
	return nil
}

// ParsePools decodes and validates pool profiles.
func ParsePools(data []byte) ([]models.Pool, error) {
	var file poolsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for i := range file.Pools {
		p := &file.Pools[i]
		if p.Id == "" {
			return nil, fmt.Errorf("pool at index %d missing id", i)
		}
		if seen[p.Id] {
			return nil, fmt.Errorf("duplicate pool id %s", p.Id)
		}
		seen[p.Id] = true

		for tranche, registry := range p.RegistryAddressByTranche {
			if !ethcommon.IsHexAddress(registry) {
				return nil, fmt.Errorf("pool %s tranche %s has invalid registry address %q", p.Id, tranche, registry)
			}
		}
		for j := range p.RequiredAgreements {
			a := &p.RequiredAgreements[j]
			a.Country = strings.ToLower(strings.TrimSpace(a.Country))
			if a.Country != models.CountryUS && a.Country != models.CountryNonUS {
				return nil, fmt.Errorf("pool %s agreement %q has invalid country tag %q", p.Id, a.Name, a.Country)
			}
			if a.ProviderTemplateId == "" || a.Tranche == "" {
				return nil, fmt.Errorf("pool %s agreement %q needs a tranche and template", p.Id, a.Name)
			}
		}
		for j, c := range p.RestrictedCountryCodes {
			p.RestrictedCountryCodes[j] = strings.ToUpper(strings.TrimSpace(c))
		}
	}
	return file.Pools, nil
}
