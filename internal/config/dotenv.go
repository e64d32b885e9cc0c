package config

import (
	"os"

	"github.com/joho/godotenv"
)

// dotEnvCandidates lists env files from highest to lowest priority:
// .env.local > .env.<APP_ENV> > .env
func dotEnvCandidates() []string {
	files := []string{".env.local"}
	if env := os.Getenv("APP_ENV"); env != "" {
		files = append(files, ".env."+env)
	}
	return append(files, ".env")
}

// LoadDotEnv loads the env files that exist in the working directory.
// godotenv.Load does NOT overwrite already-set env vars, so OS env vars
// always win and earlier files win over later ones.
// Returns list of files actually loaded.
func LoadDotEnv() []string {
	var loaded []string
	for _, f := range dotEnvCandidates() {
		if fi, err := os.Stat(f); err == nil && fi.Mode().IsRegular() {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}
