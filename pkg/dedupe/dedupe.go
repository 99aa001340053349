// Package dedupe removes persons that slipped past the import lock as exact
// duplicates of an older person.
package dedupe

import (
	"context"
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Group is a set of persons sharing every exact match key, oldest first.
type Group struct {
	Key     string
	Persons []models.Person
}

// Kept is the person that survives the sweep
func (g Group) Kept() models.Person {
	return g.Persons[0]
}

// Removed are the younger copies
func (g Group) Removed() []models.Person {
	return g.Persons[1:]
}

// DuplicateKey joins the exact match keys of a person
func DuplicateKey(p models.Person) string {
	return strings.Join([]string{p.LastNameNormalized, p.FirstNameNormalized, p.MiddleNameNormalized, p.BirthdayKey()}, "|")
}

// GroupDuplicates splits persons, already sorted by duplicate key and age,
// into groups of two or more. Persons without a birthday are never grouped.
func GroupDuplicates(persons []models.Person) []Group {
	var groups []Group
	for _, p := range persons {
		if p.Birthday == nil {
			continue
		}
		key := DuplicateKey(p)
		if n := len(groups); n > 0 && groups[n-1].Key == key {
			groups[n-1].Persons = append(groups[n-1].Persons, p)
			continue
		}
		groups = append(groups, Group{Key: key, Persons: []models.Person{p}})
	}

	return ectolinq.Filter(groups, func(g Group) bool { return len(g.Persons) > 1 })
}

type Persons interface {
	FindDuplicateGroups(ctx context.Context) ([]Group, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type Results interface {
	RepointMatchedID(ctx context.Context, from []string, to string) (int64, error)
}

type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes the sweep with imports of the same name.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Merge describes one group collapsed into its oldest person
type Merge struct {
	KeptUID     string   `json:"kept_uid"`
	RemovedUIDs []string `json:"removed_uids"`
	Repointed   int64    `json:"repointed"`
}

type Report struct {
	DryRun    bool    `json:"dry_run"`
	Groups    int     `json:"groups"`
	Removed   int     `json:"removed"`
	Repointed int64   `json:"repointed"`
	Merges    []Merge `json:"merges"`
}

type Sweeper struct {
	persons Persons
	results Results
	tx      Transactor
	locker  Locker
	logger  ectologger.Logger
}

func NewSweeper(persons Persons, results Results, tx Transactor, locker Locker, logger ectologger.Logger) *Sweeper {
	return &Sweeper{
		persons: persons,
		results: results,
		tx:      tx,
		locker:  locker,
		logger:  logger,
	}
}

// Sweep keeps the oldest person of every duplicate group, moves the removed
// persons' decisions onto it and deletes the rest. A dry run only reports.
func (s *Sweeper) Sweep(ctx context.Context, dryRun bool) (*Report, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Sweeper.Sweep")
	defer span.End()

	groups, err := s.persons.FindDuplicateGroups(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{DryRun: dryRun, Groups: len(groups), Merges: []Merge{}}
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		merge := Merge{
			KeptUID:     g.Kept().UID,
			RemovedUIDs: ectolinq.Map(g.Removed(), func(p models.Person) string { return p.UID }),
		}
		if !dryRun {
			if merge.Repointed, err = s.merge(ctx, g); err != nil {
				return report, err
			}
			report.Repointed += merge.Repointed
		}
		report.Removed += len(merge.RemovedUIDs)
		report.Merges = append(report.Merges, merge)

		s.logger.WithContext(ctx).WithFields(map[string]any{
			"kept_uid":  merge.KeptUID,
			"removed":   merge.RemovedUIDs,
			"repointed": merge.Repointed,
			"dry_run":   dryRun,
		}).Info("Collapsed duplicate persons")
	}

	if !dryRun {
		metrics.RecordDuplicatesRemoved(report.Removed)
	}
	return report, nil
}

func (s *Sweeper) merge(ctx context.Context, g Group) (int64, error) {
	kept := g.Kept()
	subject := matching.Subject{LastName: kept.LastNameNormalized, FirstName: kept.FirstNameNormalized}

	unlock, err := s.locker.Lock(ctx, subject.LockKey())
	if err != nil {
		return 0, err
	}
	defer unlock()

	removed := g.Removed()
	var repointed int64
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		uids := ectolinq.Map(removed, func(p models.Person) string { return p.UID })
		if repointed, err = s.results.RepointMatchedID(ctx, uids, kept.UID); err != nil {
			return err
		}
		_, err = s.persons.DeleteByIDs(ctx, ectolinq.Map(removed, func(p models.Person) uuid.UUID { return p.ID }))
		return err
	})
	return repointed, err
}
