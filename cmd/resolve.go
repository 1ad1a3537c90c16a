package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/bnema/devproxy/internal/config"
)

const defaultEnvFile = ".env"

type rootOptions struct {
	configPath string
	envFile    string
}

// resolved is a configuration together with where it came from.
type resolved struct {
	cfg        config.Config
	configFile string
	envFile    string
}

// resolve builds the configuration: defaults, then the yaml file, then the
// environment (process variables win over the dotenv file), then flags.
func (o *rootOptions) resolve(fs *pflag.FlagSet) (resolved, error) {
	return o.resolveWith(fs, os.LookupEnv)
}

func (o *rootOptions) resolveWith(fs *pflag.FlagSet, lookup func(string) (string, bool)) (resolved, error) {
	res := resolved{cfg: config.Default()}

	if o.configPath != "" {
		if err := config.LoadFile(o.configPath, &res.cfg); err != nil {
			return res, err
		}
		res.configFile = o.configPath
	} else {
		found, err := config.LoadDefaultFile(&res.cfg)
		if err != nil {
			return res, err
		}
		if found {
			res.configFile = config.DefaultFile
		}
	}

	dotenv, envFile, err := o.readEnvFile()
	if err != nil {
		return res, err
	}
	res.envFile = envFile

	if err := config.ApplyEnv(&res.cfg, chainLookup(lookup, dotenv)); err != nil {
		return res, err
	}
	if err := config.ApplyFlags(fs, &res.cfg); err != nil {
		return res, err
	}
	return res, nil
}

// readEnvFile reads the --env-file, or ./.env when it exists.
func (o *rootOptions) readEnvFile() (map[string]string, string, error) {
	path := o.envFile
	if path == "" {
		if _, err := os.Stat(defaultEnvFile); errors.Is(err, os.ErrNotExist) {
			return nil, "", nil
		}
		path = defaultEnvFile
	}

	values, err := godotenv.Read(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return values, path, nil
}

func chainLookup(primary func(string) (string, bool), fallback map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := primary(key); ok && v != "" {
			return v, true
		}
		v, ok := fallback[key]
		return v, ok
	}
}
