package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/fixmate/backend/internal/config"
	"github.com/fixmate/backend/internal/database"
	"github.com/fixmate/backend/internal/embedding"
	"github.com/fixmate/backend/internal/models"
	"github.com/fixmate/backend/internal/repository"
	"github.com/fixmate/backend/internal/seeder"
	"github.com/fixmate/backend/pkg/utils"
	"github.com/gocolly/colly/v2"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// ManualSource describes one manufacturer support page to crawl.
type ManualSource struct {
	Manufacturer string
	ModelSeries  string
	URL          string
	Priority     int
}

var manualSources = []ManualSource{
	{Manufacturer: "Bosch", ModelSeries: "SMS Series", Priority: 10, URL: "https://www.bosch-home.com/us/owner-support/dishwasher-troubleshooting"},
	{Manufacturer: "Whirlpool", ModelSeries: "WTW Series", Priority: 10, URL: "https://www.whirlpool.com/services/washer-troubleshooting.html"},
	{Manufacturer: "LG", ModelSeries: "DLE Series", Priority: 9, URL: "https://www.lg.com/us/support/dryer-troubleshooting"},
	{Manufacturer: "Samsung", ModelSeries: "WF Series", Priority: 9, URL: "https://www.samsung.com/us/support/troubleshooting/washer"},
	{Manufacturer: "GE", ModelSeries: "GTD Series", Priority: 8, URL: "https://www.geappliances.com/ge/service-and-support/dryer-troubleshooting.htm"},
	{Manufacturer: "Frigidaire", ModelSeries: "FFTR Series", Priority: 8, URL: "https://www.frigidaire.com/support/refrigerator-troubleshooting"},
	{Manufacturer: "Maytag", ModelSeries: "MVW Series", Priority: 7, URL: "https://www.maytag.com/support/washer-troubleshooting.html"},
	{Manufacturer: "KitchenAid", ModelSeries: "KDTM Series", Priority: 7, URL: "https://www.kitchenaid.com/support/dishwasher-troubleshooting.html"},
}

const maxChunkSize = 1200

var (
	dryRun     = flag.Bool("dry-run", false, "Don't write to the database, just print what would be seeded")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	pageLimit  = flag.Int("limit", 0, "Limit number of manual sources to crawl (0 = all)")
	concurrent = flag.Int("concurrent", 2, "Number of concurrent requests")
	delay      = flag.Duration("delay", 2*time.Second, "Delay between requests")
	skipCrawl  = flag.Bool("skip-crawl", false, "Seed curated entries and safety rules only")
)

// ManualSeeder crawls manufacturer support pages into embedded manual
// chunks and bootstraps the curated entry and safety rule tables.
type ManualSeeder struct {
	embedder    *embedding.Client
	repoManager *repository.RepositoryManager
	processor   *seeder.ContentProcessor
	logger      *logrus.Logger
	processed   map[string]bool
	errors      []error
}

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	logger := utils.GetLogger()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	logger.Info("Starting appliance knowledge seeder...")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	var embedderClient *embedding.Client
	var repoManager *repository.RepositoryManager

	if !*dryRun {
		if err := cfg.ValidateEmbedder(); err != nil {
			logger.WithError(err).Fatal("Embedder configuration validation failed")
		}

		dbConfig := &database.Config{
			DatabaseURL: cfg.Database.URL,
			RedisURL:    cfg.Redis.URL,
			LogLevel:    os.Getenv("LOG_LEVEL"),
		}

		dbManager, err := database.NewManager(dbConfig, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize database manager")
		}
		defer dbManager.Close()

		if err := dbManager.Migrate(); err != nil {
			logger.WithError(err).Fatal("Failed to run migrations")
		}

		repoManager = repository.NewRepositoryManager(dbManager.DB)
		embedderClient = embedding.NewClient(cfg.Embedder.BaseURL, cfg.Embedder.Model, logger)
	}

	s := &ManualSeeder{
		embedder:    embedderClient,
		repoManager: repoManager,
		processor:   seeder.NewContentProcessor(),
		logger:      logger,
		processed:   make(map[string]bool),
	}

	ctx := context.Background()

	if err := s.SeedSafetyRules(); err != nil {
		logger.WithError(err).Fatal("Safety rule seeding failed")
	}

	if err := s.SeedCuratedEntries(); err != nil {
		logger.WithError(err).Fatal("Curated entry seeding failed")
	}

	if !*skipCrawl {
		if err := s.SeedManualChunks(ctx); err != nil {
			logger.WithError(err).Fatal("Manual chunk seeding failed")
		}
	}

	logger.Info("Knowledge seeding completed successfully!")
}

// SeedManualChunks crawls each source, splits its content into chunks,
// embeds them, and stores the result.
func (s *ManualSeeder) SeedManualChunks(ctx context.Context) error {
	sources := make([]ManualSource, len(manualSources))
	copy(sources, manualSources)

	for i := 0; i < len(sources)-1; i++ {
		for j := i + 1; j < len(sources); j++ {
			if sources[i].Priority < sources[j].Priority {
				sources[i], sources[j] = sources[j], sources[i]
			}
		}
	}

	if *pageLimit > 0 && *pageLimit < len(sources) {
		sources = sources[:*pageLimit]
		s.logger.WithField("limit", *pageLimit).Info("Limited sources to crawl")
	}

	s.logger.WithField("total_sources", len(sources)).Info("Crawling manual sources")

	for i, source := range sources {
		s.logger.WithFields(logrus.Fields{
			"manufacturer": source.Manufacturer,
			"series":       source.ModelSeries,
			"progress":     fmt.Sprintf("%d/%d", i+1, len(sources)),
		}).Info("Processing source")

		if err := s.processSource(ctx, source); err != nil {
			s.logger.WithError(err).WithField("url", source.URL).Error("Failed to process source")
			s.errors = append(s.errors, fmt.Errorf("failed to process %s: %w", source.URL, err))
			continue
		}

		s.processed[source.URL] = true
		time.Sleep(500 * time.Millisecond)
	}

	s.logger.WithFields(logrus.Fields{
		"processed": len(s.processed),
		"errors":    len(s.errors),
	}).Info("Manual crawling completed")

	for _, err := range s.errors {
		s.logger.WithError(err).Warn("Processing error")
	}

	return nil
}

func (s *ManualSeeder) processSource(ctx context.Context, source ManualSource) error {
	var content string
	var processingError error

	c := colly.NewCollector(
		colly.UserAgent("FixmateBot/1.0 (+https://github.com/fixmate/backend)"),
	)

	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: *concurrent,
		Delay:       *delay,
	})
	c.SetRequestTimeout(30 * time.Second)

	c.OnHTML("main, article, #content, .content", func(e *colly.HTMLElement) {
		if content != "" {
			return
		}
		content = s.extractContent(e)
	})

	c.OnError(func(r *colly.Response, err error) {
		processingError = err
	})

	if err := c.Visit(source.URL); err != nil {
		return fmt.Errorf("failed to visit page: %w", err)
	}
	if processingError != nil {
		return fmt.Errorf("processing error: %w", processingError)
	}
	if content == "" {
		return fmt.Errorf("no content extracted from page")
	}

	cleaned := s.processor.CleanContent(content)
	chunks := s.processor.SplitIntoChunks(cleaned, maxChunkSize)

	if *dryRun {
		s.logger.WithFields(logrus.Fields{
			"manufacturer":   source.Manufacturer,
			"content_length": len(cleaned),
			"chunks":         len(chunks),
		}).Info("DRY RUN: Would seed manual chunks")
		return nil
	}

	for i, chunk := range chunks {
		vector, err := s.embedder.EmbedWithRetry(ctx, chunk)
		if err != nil {
			s.logger.WithError(err).WithField("chunk", i).Warn("Failed to embed chunk; skipping")
			continue
		}

		record := &models.ManualChunk{
			Manufacturer: source.Manufacturer,
			ModelSeries:  source.ModelSeries,
			Content:      chunk,
			ContentType:  s.processor.ClassifyContentType(chunk),
			Embedding:    models.Float32Array(vector),
			IsActive:     true,
		}

		if err := s.repoManager.ManualChunk.Create(record); err != nil {
			s.logger.WithError(err).WithField("chunk", i).Warn("Failed to store chunk")
			continue
		}

		if len(chunks) > 10 && i%5 == 0 {
			s.logger.WithFields(logrus.Fields{
				"manufacturer": source.Manufacturer,
				"progress":     fmt.Sprintf("%d/%d", i+1, len(chunks)),
			}).Debug("Chunk embedding progress")
		}
	}

	return nil
}

func (s *ManualSeeder) extractContent(e *colly.HTMLElement) string {
	e.DOM.Find("nav, header, footer, script, style, .cookie-banner, .breadcrumb").Remove()

	var parts []string
	e.DOM.Find("h2, h3, p, li").Each(func(i int, selection *goquery.Selection) {
		text := strings.TrimSpace(selection.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})

	return strings.Join(parts, "\n\n")
}

// SeedSafetyRules bootstraps the classifier rule table. Existing rules
// are left alone; the pattern column is unique.
func (s *ManualSeeder) SeedSafetyRules() error {
	rules := []models.SafetyRule{
		{Pattern: "gas line", Level: "professional_only", Priority: 100,
			Rationale: "Gas line work is regulated and a leak risks fire or poisoning",
			Warning:   "If you smell gas, leave the building and call your utility provider."},
		{Pattern: "gas valve", Level: "professional_only", Priority: 100,
			Rationale: "Gas valves must be serviced by a licensed technician"},
		{Pattern: "capacitor", Level: "dangerous", Priority: 90,
			Rationale: "Capacitors hold a lethal charge after the appliance is unplugged",
			Warning:   "Never touch capacitor terminals, even on an unplugged appliance."},
		{Pattern: "compressor", Level: "professional_only", Priority: 80,
			Rationale: "Compressor circuits carry refrigerant under pressure and stored charge"},
		{Pattern: "water inlet valve", Level: "dangerous", Priority: 80,
			Rationale: "The inlet valve sits next to live mains wiring and the supply line"},
		{Pattern: "heating element", Level: "professional_only", Priority: 70,
			Rationale: "Heating elements connect directly to mains voltage"},
		{Pattern: "mains", Level: "professional_only", Priority: 70,
			Rationale: "Mains wiring work requires a qualified electrician"},
		{Pattern: "refrigerant", Level: "professional_only", Priority: 70,
			Rationale: "Refrigerant handling requires certification"},
		{Pattern: "thermostat", Level: "requires_tools", Priority: 40,
			Warning:       "Disconnect power before removing any panel.",
			RequiredTools: models.StringArray{"screwdriver", "multimeter"}},
		{Pattern: "drain pump", Level: "requires_tools", Priority: 40,
			Warning:       "Expect standing water; keep a towel and bucket nearby.",
			RequiredTools: models.StringArray{"screwdriver", "towel", "bucket"}},
		{Pattern: "drive belt", Level: "requires_tools", Priority: 40,
			RequiredTools: models.StringArray{"screwdriver", "socket set"}},
		{Pattern: "door seal", Level: "safe_diy", Priority: 20,
			Warning: "Use only mild detergent on the gasket."},
		{Pattern: "clean the filter", Level: "safe_diy", Priority: 20},
		{Pattern: "lint trap", Level: "safe_diy", Priority: 20},
		{Pattern: "level the", Level: "safe_diy", Priority: 10},
	}

	if *dryRun {
		s.logger.WithField("rules", len(rules)).Info("DRY RUN: Would seed safety rules")
		return nil
	}

	seeded := 0
	for i := range rules {
		if err := s.repoManager.SafetyRule.Create(&rules[i]); err != nil {
			s.logger.WithError(err).WithField("pattern", rules[i].Pattern).Debug("Safety rule already present")
			continue
		}
		seeded++
	}

	s.logger.WithField("seeded", seeded).Info("Safety rules seeded")
	return nil
}

// SeedCuratedEntries bootstraps the exact-match table with common
// appliance questions.
func (s *ManualSeeder) SeedCuratedEntries() error {
	entries := []models.QAEntry{
		{
			Question: "Dishwasher not draining",
			Answer: `1. Remove the bottom rack and check the drain filter at the base of the tub for food debris.
2. Twist the filter counter-clockwise, lift it out, and rinse it under running water.
3. Check the drain hose under the sink for kinks.
4. Run a rinse cycle to confirm the water drains.`,
			Keywords:        models.StringArray{"dishwasher", "not draining", "standing water", "drain", "filter"},
			SafetyLevel:     "safe_diy",
			ComplexityScore: 2,
			SuccessRate:     0.85,
		},
		{
			Question: "Washer shaking or vibrating violently during spin",
			Answer: `1. Confirm all four shipping bolts were removed from the back panel.
2. Place a level on top of the machine and adjust the front feet until it sits flat.
3. Redistribute the load so heavy items are not bunched on one side.
4. Run a spin cycle with a balanced load to verify.`,
			Keywords:        models.StringArray{"washer", "shaking", "vibrating", "spin", "unbalanced"},
			SafetyLevel:     "safe_diy",
			ComplexityScore: 2,
			SuccessRate:     0.8,
		},
		{
			Question: "Dryer not heating",
			Answer: `1. Check that the dryer is on a heat cycle, not air fluff.
2. Clean the lint trap and check the exterior vent for blockage.
3. Check the breaker panel; electric dryers use two breakers and one can trip alone.
4. If there is still no heat, the thermal fuse or heating element needs testing with a multimeter.`,
			Keywords:        models.StringArray{"dryer", "not heating", "no heat", "lint", "vent"},
			SafetyLevel:     "requires_tools",
			ComplexityScore: 4,
			SuccessRate:     0.7,
		},
		{
			Question: "Refrigerator not cooling but light works",
			Answer: `1. Check the temperature setting was not bumped.
2. Vacuum the condenser coils underneath or behind the unit.
3. Make sure vents inside the fridge are not blocked by food.
4. Listen for the condenser fan; if it is silent with the compressor hot, stop and call a technician.`,
			Keywords:        models.StringArray{"refrigerator", "fridge", "not cooling", "warm", "coils"},
			SafetyLevel:     "safe_diy",
			ComplexityScore: 3,
			SuccessRate:     0.65,
		},
		{
			Question: "Washing machine leaking from the bottom",
			Answer: `1. Pull the machine out and check the fill hoses at the back for drips.
2. Inspect the door gasket for trapped debris or tears.
3. Check the drain pump filter cover at the front bottom; a loose cover leaks during drain.
4. Tighten hose clamps with a screwdriver if the leak comes from a connection.`,
			Keywords:        models.StringArray{"washer", "washing machine", "leaking", "leak", "water", "hose"},
			SafetyLevel:     "requires_tools",
			ComplexityScore: 3,
			SuccessRate:     0.75,
		},
		{
			Question: "Oven door will not close fully",
			Answer: `1. Check the door hinges for food debris or misalignment.
2. Inspect the door gasket for tears or gaps.
3. Open the door fully and flex it gently to reseat the hinges.
4. If the hinges are bent, they need replacement before the oven will seal.`,
			Keywords:        models.StringArray{"oven", "door", "not closing", "latch", "hinge", "seal"},
			SafetyLevel:     "safe_diy",
			ComplexityScore: 2,
			SuccessRate:     0.7,
		},
		{
			Question: "Dishwasher leaves dishes dirty",
			Answer: `1. Clean the spray arms; clear blocked holes with a toothpick.
2. Clean the drain filter at the base of the tub.
3. Load dishes so they do not block the spray arms.
4. Run a hot-water cycle with dishwasher cleaner to clear buildup.`,
			Keywords:        models.StringArray{"dishwasher", "dirty", "dishes", "not cleaning", "spray arm"},
			SafetyLevel:     "safe_diy",
			ComplexityScore: 1,
			SuccessRate:     0.8,
		},
		{
			Question: "Ice maker not making ice",
			Answer: `1. Check the ice maker's shutoff arm or switch is in the on position.
2. Confirm the freezer is at or below 0°F (-18°C).
3. Inspect the fill tube at the back of the ice maker for ice blockage.
4. If the fill tube is frozen, the water inlet valve may be failing and needs professional service.`,
			Keywords:        models.StringArray{"ice maker", "ice", "not making", "frozen", "fill tube"},
			SafetyLevel:     "safe_diy",
			ComplexityScore: 3,
			SuccessRate:     0.6,
		},
	}

	if *dryRun {
		s.logger.WithField("entries", len(entries)).Info("DRY RUN: Would seed curated entries")
		return nil
	}

	seeded := 0
	for i := range entries {
		entries[i].IsActive = true
		if err := s.repoManager.QAEntry.Create(&entries[i]); err != nil {
			s.logger.WithError(err).WithField("question", entries[i].Question).Warn("Failed to seed entry")
			continue
		}
		seeded++
	}

	s.logger.WithField("seeded", seeded).Info("Curated entries seeded")
	return nil
}
