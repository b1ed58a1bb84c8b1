package service

import (
	"context"
	"fmt"
	"log/slog"
)

// MigrationReport summarizes a migrate-users run.
type MigrationReport struct {
	Migrated int64 `json:"migratedCount"`
	Scanned  int   `json:"scanned"`
	Repaired int   `json:"repaired"`
}

// MigrateUsers rewrites every legacy followers/following field to the set
// form and then repairs one-sided follow edges across all users.
func (s *RelationshipService) MigrateUsers(ctx context.Context) (*MigrationReport, error) {
	migrated, err := s.users.MigrateLegacyRelations(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/relationship: migrating legacy fields: %w", err)
	}
	s.logger.Info("legacy relationship migration done", slog.Int64("migrated", migrated))

	ids, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/relationship: listing users: %w", err)
	}

	report := &MigrationReport{Migrated: migrated, Scanned: len(ids)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		n, err := s.Repair(ctx, id)
		if err != nil {
			return report, err
		}
		report.Repaired += n
	}

	s.logger.Info("relationship sweep done",
		slog.Int("scanned", report.Scanned),
		slog.Int("repaired", report.Repaired),
	)
	return report, nil
}
