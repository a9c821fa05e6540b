package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"chat-feed/internal/config"
	"chat-feed/internal/domain"
	"chat-feed/internal/service"
)

// issue_token firma un access token de desarrollo. El login real vive fuera de este repo.
func main() {
	identity := flag.String("identity", "", "identidad visible del viewer (obligatoria)")
	id := flag.String("id", "", "id del viewer (por defecto un uuid nuevo)")
	federated := flag.Bool("github", false, "marca la identidad como federada (GitHub)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	if strings.TrimSpace(*identity) == "" {
		log.Fatal("-identity is required")
	}

	viewer := domain.Viewer{ID: *id, Identity: strings.TrimSpace(*identity), Source: domain.SourceDirect}
	if viewer.ID == "" {
		viewer.ID = uuid.NewString()
	}
	if *federated {
		viewer.Source = domain.SourceFederated
	}

	jwtSvc := service.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute)
	token, err := jwtSvc.IssueAccessToken(viewer)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
}
