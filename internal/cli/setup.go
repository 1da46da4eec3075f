package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/btcsim/config"
	"github.com/vadiminshakov/btcsim/internal/domain"
	"github.com/vadiminshakov/btcsim/internal/storage/kv"
)

var (
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1)
)

// setupAnswers collects the wizard input.
type setupAnswers struct {
	Platform       string
	Pair           string
	PollInterval   string
	Backend        string
	HyperliquidURL string
	WebAddr        string
}

func newSetupCmd(rc *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create a config file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := rc.configPath
			if path == "" {
				path = defaultConfigPath
			}

			answers, err := runWizard()
			if err != nil {
				return err
			}

			tmp, err := answers.toConfig()
			if err != nil {
				return err
			}
			if err := config.Save(path, tmp); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), lipgloss.NewStyle().Foreground(special).Render(
				fmt.Sprintf("✓ Configuration saved to %s\nRun: btcsim serve --config %s", path, path)))

			return nil
		},
	}
}

func runWizard() (setupAnswers, error) {
	a := setupAnswers{
		Platform:     config.PlatformBinance,
		Pair:         domain.DefaultPair.String(),
		PollInterval: "12s",
		Backend:      kv.BackendFile,
		WebAddr:      ":8080",
	}

	fmt.Println(headerStyle.Render("BTCSIM SETUP"))

	fmt.Println(stepStyle.Render("STEP 1: MARKET DATA"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Price source").
				Options(
					huh.NewOption("Binance", config.PlatformBinance),
					huh.NewOption("Bybit", config.PlatformBybit),
					huh.NewOption("Hyperliquid", config.PlatformHyperliquid),
				).
				Value(&a.Platform),
			huh.NewInput().
				Title("Trading pair").
				Description("BASE_QUOTE, e.g. BTC_USDT").
				Value(&a.Pair).
				Validate(func(s string) error {
					_, err := domain.ParsePair(s)
					return err
				}),
			huh.NewInput().
				Title("Price poll interval").
				Description("Duration string (e.g. 12s, 1m)").
				Value(&a.PollInterval).
				Validate(validateInterval),
		),
	).Run()
	if err != nil {
		return a, err
	}

	if a.Platform == config.PlatformHyperliquid {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Hyperliquid API URL").
					Description("Leave empty for mainnet").
					Value(&a.HyperliquidURL),
			),
		).Run()
		if err != nil {
			return a, err
		}
	}

	fmt.Println(stepStyle.Render("STEP 2: STORAGE AND API"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("State backend").
				Options(
					huh.NewOption("JSON files", kv.BackendFile),
					huh.NewOption("SQLite", kv.BackendSQLite),
					huh.NewOption("In memory (lost on exit)", kv.BackendMemory),
				).
				Value(&a.Backend),
			huh.NewInput().
				Title("HTTP listen address").
				Value(&a.WebAddr),
		),
	).Run()
	if err != nil {
		return a, err
	}

	var confirm bool
	summary := fmt.Sprintf("Platform: %s\nPair: %s\nInterval: %s\nBackend: %s\nAPI: %s",
		a.Platform, a.Pair, a.PollInterval, a.Backend, a.WebAddr)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save configuration?").
				Affirmative("Yes").
				Negative("No").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return a, err
	}
	if !confirm {
		return a, errors.New("setup cancelled by user")
	}

	return a, nil
}

func (a setupAnswers) toConfig() (config.ConfigTmp, error) {
	pair, err := domain.ParsePair(a.Pair)
	if err != nil {
		return config.ConfigTmp{}, err
	}
	interval, err := time.ParseDuration(a.PollInterval)
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "poll interval")
	}

	return config.ConfigTmp{
		Pair:              pair.String(),
		Platform:          a.Platform,
		HyperliquidURL:    a.HyperliquidURL,
		PollPriceInterval: interval,
		Storage:           config.StorageConfig{Backend: a.Backend},
		Web:               config.WebConfig{Addr: a.WebAddr},
	}, nil
}

func validateInterval(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d < time.Second {
		return errors.New("must be at least 1s")
	}

	return nil
}
