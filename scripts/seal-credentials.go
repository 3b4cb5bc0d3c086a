// Command seal-credentials re-seals plain stored secrets as bcrypt hashes in the
// configured database. Run it before switching CREDENTIAL_SCHEME to bcrypt.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/studydesk/account-core/internal/config"
	"github.com/studydesk/account-core/internal/database"
	"github.com/studydesk/account-core/internal/repository"
	"github.com/studydesk/account-core/internal/service"
	"github.com/studydesk/account-core/internal/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	count, err := service.ResealPlainCredentials(ctx, repository.NewSQLStore(db), util.BcryptCredentials{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("resealed %d credentials\n", count)
}
