package config

import (
	"encoding/json"
	"math/rand"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/prop"
)

type mergeInput struct {
	Mask     int
	Host     string
	User     string
	Port     int
	Table    string
	Hostname string
	Interval int
}

func TestPropertyDatabaseKeysMergeIndividually(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	props := gopter.NewProperties(params)

	props.Property("present keys replace defaults, absent keys keep them", prop.ForAll(
		func(in mergeInput) bool {
			data, expected := buildMergeCase(in)
			cfg, err := Parse("config.json", data)
			if err != nil {
				return false
			}
			return cfg == expected
		},
		genMergeCase(),
	))

	props.TestingRun(t)
}

func TestPropertyCLIPriority(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 25
	props := gopter.NewProperties(params)

	props.Property("CLI overrides config values", prop.ForAll(
		func(fileInterval, cliInterval int) bool {
			data, _ := json.Marshal(map[string]any{"check_interval_minutes": fileInterval})
			path := writeTempConfig(t, "config.json", string(data))

			cfg, err := FileLoader{}.LoadConfig(path, CLIOverrides{IntervalMinutes: &cliInterval})
			if err != nil {
				return false
			}
			return int(cfg.IntervalMinutes) == cliInterval
		},
		gopter.Gen(func(genParams *gopter.GenParameters) *gopter.GenResult {
			return gopter.NewGenResult(genParams.Rng.Intn(120)+1, gopter.NoShrinker)
		}),
		gopter.Gen(func(genParams *gopter.GenParameters) *gopter.GenResult {
			return gopter.NewGenResult(genParams.Rng.Intn(120)+1, gopter.NoShrinker)
		}),
	))

	props.TestingRun(t)
}

func buildMergeCase(in mergeInput) ([]byte, Config) {
	expected := Default()
	top := map[string]any{}
	db := map[string]any{}

	if in.Mask&1 != 0 {
		db["host"] = in.Host
		expected.Ledger.Host = in.Host
	}
	if in.Mask&2 != 0 {
		db["user"] = in.User
		expected.Ledger.User = in.User
	}
	if in.Mask&4 != 0 {
		// Ports were historically written as strings.
		if in.Port%2 == 0 {
			db["port"] = in.Port
		} else {
			db["port"] = strconv.Itoa(in.Port)
		}
		expected.Ledger.Port = Int(in.Port)
	}
	if in.Mask&8 != 0 {
		db["table_name"] = in.Table
		expected.Ledger.Table = in.Table
	}
	if in.Mask&16 != 0 {
		top["hostname"] = in.Hostname
		expected.Hostname = in.Hostname
	}
	if in.Mask&32 != 0 {
		top["check_interval_minutes"] = in.Interval
		expected.IntervalMinutes = Int(in.Interval)
	}
	if len(db) > 0 {
		top["database"] = db
	}

	data, _ := json.Marshal(top)
	return data, expected
}

func genMergeCase() gopter.Gen {
	return gopter.Gen(func(genParams *gopter.GenParameters) *gopter.GenResult {
		rng := genParams.Rng
		in := mergeInput{
			Mask:     rng.Intn(64),
			Host:     randomToken(rng),
			User:     randomToken(rng),
			Port:     rng.Intn(65535) + 1,
			Table:    "t_" + randomToken(rng),
			Hostname: randomToken(rng) + ".example",
			Interval: rng.Intn(60) + 1,
		}
		return gopter.NewGenResult(in, gopter.NoShrinker)
	})
}

func randomToken(rng *rand.Rand) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	length := rng.Intn(8) + 1
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = letters[rng.Intn(len(letters))]
	}
	return string(buf)
}
