package config

import (
	"flag"
	"os"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the remote chat API
//	-d string   path of the local SQLite database
//	-s string   path of the key-derivation secret file
//	-u string   user id for the remote chat API
//	-i int      chat sync interval in seconds
//	-p int      page size for chat listings
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-u", "-i", "-p"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "base URL of the remote chat API")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "path of the local database")
	fs.StringVar(&cfg.SecretFile, "s", cfg.SecretFile, "path of the key secret file")
	fs.StringVar(&cfg.UserID, "u", cfg.UserID, "user id for the remote chat API")
	chatSyncInterval := fs.Int("i", int(cfg.ChatSyncInterval.Seconds()), "chat sync interval (in seconds)")
	fs.IntVar(&cfg.ChatsPerPage, "p", cfg.ChatsPerPage, "chats per listing page")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.ChatSyncInterval = time.Duration(*chatSyncInterval) * time.Second
}
