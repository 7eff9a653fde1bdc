package config

import (
	"fmt"
	"os"

	"github.com/chaostheory/staking-service/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const zeroAddressHex = "0x0000000000000000000000000000000000000000"

// gaugeEntry is the YAML shape of one gauge descriptor.
type gaugeEntry struct {
	Symbol       string `yaml:"symbol"`
	TokenAddress string `yaml:"token_address"`
	GaugeAddress string `yaml:"gauge_address"`
	Decimals     int32  `yaml:"decimals"`
	Pool         string `yaml:"pool"`
	Week         int    `yaml:"week"`
}

type gaugeFile struct {
	Gauges []gaugeEntry `yaml:"gauges"`
}

var defaultGauges = []gaugeEntry{
	{"ARBME", "0xC647421C5Dc78D1c3960faA7A33f9aEFDF4B7B07", "0x37547710faE12B4be7458b5E87C3106a85CfD72F", 18, "CHAOS / ARBME", 1},
	{"USDC", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", zeroAddressHex, 6, "CHAOS / USDC", 2},
	{"ALPHACLAW", "0x8C19A8b92FA406Ae097EB9eA8a4A44cBC10EafE2", zeroAddressHex, 18, "CHAOS / ALPHACLAW", 3},
	{"MLTL", "0xa448d40f6793773938a6b7427091c35676899125", zeroAddressHex, 18, "CHAOS / MLTL", 4},
	{"OSO", "0xc78fabc2cb5b9cf59e0af3da8e3bc46d47753a4e", zeroAddressHex, 18, "CHAOS / OSO", 5},
	{"Cnews", "0x01de044ad8eb037334ddda97a38bb0c798e4eb07", zeroAddressHex, 18, "CHAOS / Cnews", 6},
	{"RATCHET", "0x392bc5DeEa227043d69Af0e67BadCbBAeD511B07", zeroAddressHex, 18, "CHAOS / RATCHET", 7},
}

// DefaultGauges returns the seven reward streams registered at the hub.
func DefaultGauges() []domain.GaugeConfig {
	gauges, err := toDomain(defaultGauges)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in gauge table: %v", err))
	}
	return gauges
}

// LoadGauges reads a YAML gauge table, replacing the built-in one.
func LoadGauges(path string) ([]domain.GaugeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gauges file: %w", err)
	}
	return ParseGauges(data)
}

func ParseGauges(data []byte) ([]domain.GaugeConfig, error) {
	var file gaugeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse gauges file: %w", err)
	}
	if len(file.Gauges) == 0 {
		return nil, fmt.Errorf("gauges file defines no gauges")
	}
	gauges, err := toDomain(file.Gauges)
	if err != nil {
		return nil, err
	}
	if err := validateGauges(gauges); err != nil {
		return nil, err
	}
	return gauges, nil
}

func toDomain(entries []gaugeEntry) ([]domain.GaugeConfig, error) {
	gauges := make([]domain.GaugeConfig, 0, len(entries))
	for i, e := range entries {
		if !common.IsHexAddress(e.TokenAddress) {
			return nil, fmt.Errorf("gauge %d (%s): invalid token address %q", i, e.Symbol, e.TokenAddress)
		}
		gaugeAddr := e.GaugeAddress
		if gaugeAddr == "" {
			gaugeAddr = zeroAddressHex
		}
		if !common.IsHexAddress(gaugeAddr) {
			return nil, fmt.Errorf("gauge %d (%s): invalid gauge address %q", i, e.Symbol, e.GaugeAddress)
		}
		gauges = append(gauges, domain.GaugeConfig{
			Symbol:       e.Symbol,
			TokenAddress: common.HexToAddress(e.TokenAddress),
			GaugeAddress: common.HexToAddress(gaugeAddr),
			Decimals:     e.Decimals,
			Pool:         e.Pool,
			Week:         e.Week,
		})
	}
	return gauges, nil
}

func validateGauges(gauges []domain.GaugeConfig) error {
	seen := make(map[string]bool, len(gauges))
	for _, g := range gauges {
		if g.Symbol == "" {
			return fmt.Errorf("gauge with token %s has no symbol", g.TokenAddress.Hex())
		}
		if seen[g.Symbol] {
			return fmt.Errorf("duplicate gauge symbol %q", g.Symbol)
		}
		seen[g.Symbol] = true
		if g.Decimals < 0 || g.Decimals > 36 {
			return fmt.Errorf("gauge %s: decimals %d out of range", g.Symbol, g.Decimals)
		}
	}
	return nil
}
