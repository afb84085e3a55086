// Package setup provides the interactive configuration wizard.
package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

type wizardConfig struct {
	Pair           string `yaml:"pair"`
	TargetQuantity string `yaml:"target_quantity"`
	PriceCeiling   string `yaml:"price_ceiling,omitempty"`
	Testnet        bool   `yaml:"testnet,omitempty"`
	TogglesPath    string `yaml:"toggles_path"`
}

type wizardToggles struct {
	Strategies map[string]bool `yaml:"strategies"`
}

// RunTUI launches the terminal configuration wizard and writes config.yaml
// plus the strategy toggles file.
func RunTUI() error {
	var (
		pair       string
		targetStr  string
		ceilingStr string
		testnet    bool
		strategies []string
		confirm    bool
	)

	pair = "BTC_USDT"

	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("STACKER CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Set up an accumulation run.\n"))

	fmt.Println(stepStyle.Render("STEP 1: INSTRUMENT"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Trading pair (BASE_QUOTE)").
				Value(&pair).
				Validate(func(s string) error {
					if len(strings.Split(s, "_")) != 2 {
						return fmt.Errorf("expected format like BTC_USDT")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Use testnet?").
				Value(&testnet),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("STACKER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: TARGET"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Target quantity of the base asset").
				Value(&targetStr).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Price ceiling (empty to disable)").
				Value(&ceilingStr).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					return validatePositiveDecimal(s)
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("STACKER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: STRATEGIES"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Strategies to enable").
				Options(
					huh.NewOption("Shadow bid (passive maker at best bid)", "shadow_bid").Selected(true),
					huh.NewOption("Cooldown taker (lifts the best ask)", "cooldown_taker").Selected(true),
					huh.NewOption("Big fish (takes large resting asks)", "big_fish"),
				).
				Value(&strategies),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("STACKER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("SUMMARY"))
	fmt.Printf("  pair: %s\n  target: %s\n  ceiling: %s\n  testnet: %v\n  strategies: %s\n\n",
		pair, targetStr, orDash(ceilingStr), testnet, strings.Join(strategies, ", "))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Write config.yaml and strategies.yaml?").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("aborted by user")
	}

	cfg := wizardConfig{
		Pair:           pair,
		TargetQuantity: targetStr,
		PriceCeiling:   ceilingStr,
		Testnet:        testnet,
		TogglesPath:    "strategies.yaml",
	}
	if err := writeYaml("config.yaml", cfg); err != nil {
		return err
	}

	toggles := wizardToggles{Strategies: map[string]bool{
		"shadow_bid":     false,
		"cooldown_taker": false,
		"big_fish":       false,
	}}
	for _, s := range strategies {
		toggles.Strategies[s] = true
	}
	if err := writeYaml("strategies.yaml", toggles); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render("\nDone. Start the bot with: stacker --config config.yaml"))
	time.Sleep(300 * time.Millisecond)

	return nil
}

func validatePositiveDecimal(s string) error {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("not a decimal number")
	}
	if !v.IsPositive() {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeYaml(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
