package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fixmate/backend/internal/database"
	"github.com/sirupsen/logrus"
)

type Runner struct {
	dbManager *database.Manager
	logger    *logrus.Logger
}

func NewRunner(dbManager *database.Manager, logger *logrus.Logger) *Runner {
	return &Runner{
		dbManager: dbManager,
		logger:    logger,
	}
}

// RunMigrations executes GORM auto-migrations followed by any SQL
// migration files in migrationsPath. A missing directory is fine; the
// schema then comes entirely from auto-migration.
func (r *Runner) RunMigrations(migrationsPath string) error {
	r.logger.Info("Starting database migrations...")

	if err := r.dbManager.Migrate(); err != nil {
		return fmt.Errorf("GORM auto-migration failed: %w", err)
	}

	if _, err := os.Stat(migrationsPath); os.IsNotExist(err) {
		r.logger.Debug("No SQL migrations directory; skipping")
		return nil
	}

	if err := r.runSQLMigrations(migrationsPath); err != nil {
		return fmt.Errorf("SQL migrations failed: %w", err)
	}

	r.logger.Info("Database migrations completed successfully")
	return nil
}

func (r *Runner) runSQLMigrations(migrationsPath string) error {
	entries, err := os.ReadDir(migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}

	sort.Strings(sqlFiles) // Ensure migrations run in order

	for _, fileName := range sqlFiles {
		if err := r.runSQLFile(filepath.Join(migrationsPath, fileName)); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", fileName, err)
		}
		r.logger.WithField("file", fileName).Info("Migration executed successfully")
	}

	return nil
}

func (r *Runner) runSQLFile(filePath string) error {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	sqlContent := string(content)

	// Dollar-quoted function bodies cannot be split on semicolons, so
	// execute those files as a single statement.
	if strings.Contains(sqlContent, "$") {
		r.logger.WithField("file", filepath.Base(filePath)).Debug("Executing SQL file with dollar-quoted functions")

		if err := r.dbManager.DB.Exec(removeComments(sqlContent)).Error; err != nil {
			return fmt.Errorf("failed to execute %s: %w", filepath.Base(filePath), err)
		}
		return nil
	}

	statements := splitSQLStatements(sqlContent)

	for i, stmt := range statements {
		r.logger.WithFields(logrus.Fields{
			"file":      filepath.Base(filePath),
			"statement": i + 1,
		}).Debug("Executing SQL statement")

		if err := r.dbManager.DB.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to execute statement %d in %s: %w", i+1, filepath.Base(filePath), err)
		}
	}

	return nil
}

// removeComments strips SQL comment lines while preserving structure.
func removeComments(sql string) string {
	lines := strings.Split(sql, "\n")
	var result []string

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

// splitSQLStatements splits SQL content into individual statements.
func splitSQLStatements(sql string) []string {
	lines := strings.Split(sql, "\n")
	var cleanedLines []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			cleanedLines = append(cleanedLines, line)
		}
	}

	statements := strings.Split(strings.Join(cleanedLines, " "), ";")

	var result []string
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			result = append(result, stmt)
		}
	}

	return result
}
