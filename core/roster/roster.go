package roster

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/user"
)

const classesCacheKey = "roster:classes"

// Establishment is the establishment file: the classes and subjects taught.
type Establishment struct {
	Classes  []string `mapstructure:"classes" json:"classes"`
	Matieres []string `mapstructure:"matieres" json:"matieres"`
}

// LoadEstablishment reads the JSON establishment file at path.
func LoadEstablishment(path string) (Establishment, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return Establishment{}, errors.Wrap(err, "reading establishment file")
	}

	var est Establishment
	if err := v.Unmarshal(&est); err != nil {
		return Establishment{}, errors.Wrap(err, "decoding establishment file")
	}
	est.Classes = cleanClasses(est.Classes)
	return est, nil
}

type Repository interface {
	DistinctClasses(ctx context.Context) ([]string, error)
	ClassStudents(ctx context.Context, class string) ([]user.Ref, error)
	ClassParents(ctx context.Context, class string) ([]user.Ref, error)
}

type Service struct {
	repo              Repository
	cache             core.Cache
	logger            core.Logger
	establishmentFile string
	cacheTTL          time.Duration
}

func NewService(conf *core.Config, repo Repository, cache core.Cache, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(cache, "cache"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{
		repo:              repo,
		cache:             cache,
		logger:            logger,
		establishmentFile: conf.Roster.EstablishmentFile,
		cacheTTL:          conf.Roster.CacheTTL,
	}
}

// Classes returns the establishment's classes: from the cache, else the establishment file,
// else the classes students are enrolled in.
func (svc *Service) Classes(ctx context.Context) ([]string, error) {
	cached, err := svc.cache.Get(ctx, classesCacheKey)
	switch {
	case err == nil:
		var classes []string
		if err = json.Unmarshal([]byte(cached), &classes); err == nil {
			return classes, nil
		}
		svc.logger.Warn("decoding cached classes", err)
	case !errors.Is(err, core.ErrCacheMiss):
		svc.logger.Warn("reading cached classes", err)
	}

	classes, err := svc.resolveClasses(ctx)
	if err != nil {
		return nil, err
	}

	if len(classes) > 0 {
		data, _ := json.Marshal(classes)
		if err = svc.cache.Set(ctx, classesCacheKey, string(data), svc.cacheTTL); err != nil {
			svc.logger.Warn("caching classes", err)
		}
	}
	return classes, nil
}

func (svc *Service) resolveClasses(ctx context.Context) ([]string, error) {
	if svc.establishmentFile != "" {
		est, err := LoadEstablishment(svc.establishmentFile)
		if err != nil {
			svc.logger.Warn("falling back to enrolled classes", err)
		} else if len(est.Classes) > 0 {
			return est.Classes, nil
		}
	}

	classes, err := svc.repo.DistinctClasses(ctx)
	if err != nil {
		return nil, err
	}
	return cleanClasses(classes), nil
}

// InvalidateClasses drops the cached class list.
func (svc *Service) InvalidateClasses(ctx context.Context) error {
	return svc.cache.Del(ctx, classesCacheKey)
}

func (svc *Service) HasClass(ctx context.Context, class string) (bool, error) {
	classes, err := svc.Classes(ctx)
	if err != nil {
		return false, err
	}
	class = core.CleanString(class)
	for _, c := range classes {
		if c == class {
			return true, nil
		}
	}
	return false, nil
}

// Members returns the students of class, followed by their parents when includeParents is set.
func (svc *Service) Members(ctx context.Context, class string, includeParents bool) ([]user.Ref, error) {
	class = core.CleanString(class)
	members, err := svc.repo.ClassStudents(ctx, class)
	if err != nil {
		return nil, err
	}
	if includeParents {
		parents, err := svc.repo.ClassParents(ctx, class)
		if err != nil {
			return nil, err
		}
		members = append(members, parents...)
	}
	return user.DedupRefs(members), nil
}

func cleanClasses(classes []string) []string {
	seen := make(map[string]struct{}, len(classes))
	out := make([]string, 0, len(classes))
	for _, c := range classes {
		c = strings.TrimSpace(c)
		if _, ok := seen[c]; ok || c == "" {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
