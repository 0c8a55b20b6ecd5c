package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	grpcadapter "github.com/simaogato/treasury-backend/internal/adapter/grpc"
	"github.com/simaogato/treasury-backend/internal/domain"
)

// callertoken issues a signed caller token for the treasury server.
// The signing secret is read from CALLER_TOKEN_SECRET.
func main() {
	if err := issue(os.Args[1:], os.Getenv("CALLER_TOKEN_SECRET"), os.Stdout); err != nil {
		log.Fatalf("Failed to issue caller token: %v", err)
	}
}

func issue(args []string, secret string, out io.Writer) error {
	fs := flag.NewFlagSet("callertoken", flag.ContinueOnError)
	principal := fs.String("principal", "", "principal the token asserts")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if secret == "" {
		return fmt.Errorf("CALLER_TOKEN_SECRET is required")
	}
	if *ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", *ttl)
	}

	token, err := grpcadapter.SignCallerToken([]byte(secret), domain.Principal(*principal), *ttl)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}
