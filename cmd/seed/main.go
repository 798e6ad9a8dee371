// backend/cmd/seed/main.go
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/nkorzh/psyassist/backend/internal/config"
	"github.com/nkorzh/psyassist/backend/internal/database"
	"github.com/nkorzh/psyassist/backend/internal/models"
	"github.com/nkorzh/psyassist/backend/internal/repository"
	"github.com/nkorzh/psyassist/backend/pkg/utils"
)

// KnowledgeSeeder loads knowledge base articles from a JSON file
type KnowledgeSeeder struct {
	repoManager *repository.RepositoryManager
	logger      *logrus.Logger
}

// seedArticle mirrors the JSON shape of one knowledge base entry
type seedArticle struct {
	Category string `json:"category"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Command  string `json:"command"`
}

var (
	seedFile = flag.String("file", "knowledge.json", "Path to the knowledge base JSON file")
	dryRun   = flag.Bool("dry-run", false, "Parse the file but don't write to the database")
	verbose  = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	logger := utils.GetLogger()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	logger.Info("Starting knowledge base seeder...")

	articles, err := loadArticles(*seedFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load knowledge file")
	}

	logger.WithField("articles", len(articles)).Info("Knowledge file parsed")

	if *dryRun {
		for _, a := range articles {
			logger.WithFields(logrus.Fields{
				"category": a.Category,
				"title":    a.Title,
				"command":  a.Command,
			}).Info("DRY RUN: Would seed article")
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
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
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	seeder := &KnowledgeSeeder{
		repoManager: repository.NewRepositoryManager(dbManager.DB),
		logger:      logger,
	}

	created, updated := seeder.Seed(articles)
	logger.WithFields(logrus.Fields{
		"created": created,
		"updated": updated,
	}).Info("Knowledge seeding completed")
}

func loadArticles(path string) ([]seedArticle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var articles []seedArticle
	if err := json.Unmarshal(data, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

// Seed upserts each article by its bot command. Articles without a
// command are always inserted as new rows.
func (s *KnowledgeSeeder) Seed(articles []seedArticle) (created, updated int) {
	for _, a := range articles {
		item := &models.KnowledgeItem{
			Category: a.Category,
			Title:    a.Title,
			Content:  a.Content,
			Command:  a.Command,
		}

		if a.Command != "" {
			existing, err := s.repoManager.KnowledgeItem.GetByCommand(a.Command)
			if err == nil {
				existing.Category = a.Category
				existing.Title = a.Title
				existing.Content = a.Content

				if err := s.repoManager.KnowledgeItem.Update(existing); err != nil {
					s.logger.WithError(err).WithField("command", a.Command).Error("Failed to update article")
					continue
				}
				updated++
				continue
			}
		}

		if err := s.repoManager.KnowledgeItem.Create(item); err != nil {
			s.logger.WithError(err).WithField("title", a.Title).Error("Failed to create article")
			continue
		}
		created++
	}

	return created, updated
}
