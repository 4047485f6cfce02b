package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/proctorstem-backend/internal/config"
	"github.com/stemsi/proctorstem-backend/internal/database"
	"github.com/stemsi/proctorstem-backend/internal/logger"
	"github.com/stemsi/proctorstem-backend/internal/repository"
	"github.com/stemsi/proctorstem-backend/internal/service"
	"golang.org/x/term"
)

// issue-token verifies a participant's credentials and prints a signed JWT.
// Meant for operators handing out attempt access while the login surface
// lives elsewhere.
func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	participantRepo := repository.NewParticipantRepository(pool)
	authService := service.NewAuthService(cfg, rdb)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Issue Participant Token ===")

	fmt.Print("Enter Username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)
	if username == "" {
		fmt.Println("Error: Username is required")
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	fmt.Println()

	// ─── Logic ─────────────────────────────────────────────────────────
	participant, err := participantRepo.GetByUsername(ctx, username)
	if err != nil {
		log.Fatal().Err(err).Msg("Participant not found")
	}

	if err := authService.CheckPassword(participant.PasswordHash, string(bytePassword)); err != nil {
		log.Fatal().Msg("Invalid password")
	}

	token, err := authService.GenerateParticipantToken(ctx, participant.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	fmt.Printf("\nToken for '%s' (expires in %s):\n\n%s\n", participant.Username, cfg.JWTExpiry, token)
}
