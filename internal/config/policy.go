package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy holds the game balance knobs: quotas, milestone bonuses, batch
// sizes and loot weights.
type Policy struct {
	Limits     Limits     `yaml:"limits" json:"limits"`
	Milestones Milestones `yaml:"milestones" json:"milestones"`
	Recurring  Recurring  `yaml:"recurring" json:"recurring"`
	Loot       Loot       `yaml:"loot" json:"loot"`

	// RetentionDays is how long completed/approved tasks are kept.
	RetentionDays int `yaml:"retention_days" json:"retention_days"`
	// SuspiciousSeconds flags completions faster than this after start.
	SuspiciousSeconds int `yaml:"suspicious_seconds" json:"suspicious_seconds"`
}

type Limit struct {
	MaxTasks int `yaml:"max_tasks" json:"max_tasks"`
	MaxCoins int `yaml:"max_coins" json:"max_coins"`
}

type Limits struct {
	Daily   Limit `yaml:"daily" json:"daily"`
	Weekly  Limit `yaml:"weekly" json:"weekly"`
	Monthly Limit `yaml:"monthly" json:"monthly"`
}

type Bonus struct {
	// Threshold is tasks per day, marked days per week, or marked weeks per month.
	Threshold int `yaml:"threshold" json:"threshold"`
	Coins     int `yaml:"coins" json:"coins"`
	XP        int `yaml:"xp" json:"xp"`
}

type Milestones struct {
	Daily   Bonus `yaml:"daily" json:"daily"`
	Weekly  Bonus `yaml:"weekly" json:"weekly"`
	Monthly Bonus `yaml:"monthly" json:"monthly"`
}

// Recurring sets how many daily children a weekly or monthly request spawns.
type Recurring struct {
	WeeklyDays  int `yaml:"weekly_days" json:"weekly_days"`
	MonthlyDays int `yaml:"monthly_days" json:"monthly_days"`
}

type Loot struct {
	RarityWeights map[string]int `yaml:"rarity_weights" json:"rarity_weights"`
	DefaultWeight int            `yaml:"default_weight" json:"default_weight"`
	LevelUpXP     int            `yaml:"level_up_xp" json:"level_up_xp"`
}

func DefaultPolicy() Policy {
	return Policy{
		Limits: Limits{
			Daily:   Limit{MaxTasks: 10, MaxCoins: 50},
			Weekly:  Limit{MaxTasks: 7, MaxCoins: 50},
			Monthly: Limit{MaxTasks: 30, MaxCoins: 50},
		},
		Milestones: Milestones{
			Daily:   Bonus{Threshold: 6, Coins: 50, XP: 100},
			Weekly:  Bonus{Threshold: 5, Coins: 300, XP: 600},
			Monthly: Bonus{Threshold: 4, Coins: 1200, XP: 2400},
		},
		Recurring: Recurring{WeeklyDays: 6, MonthlyDays: 26},
		Loot: Loot{
			RarityWeights: map[string]int{
				"common":    50,
				"rare":      30,
				"epic":      15,
				"legendary": 10,
			},
			DefaultWeight: 10,
			LevelUpXP:     1000,
		},
		RetentionDays:     30,
		SuspiciousSeconds: 60,
	}
}

// LoadPolicy reads a YAML policy file on top of the defaults, so a file only
// needs the keys it changes.
func LoadPolicy(path string) (Policy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(b)
}

func ParsePolicy(b []byte) (Policy, error) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	if p.Recurring.WeeklyDays <= 0 || p.Recurring.MonthlyDays <= 0 {
		return fmt.Errorf("policy: recurring day counts must be positive")
	}
	for name, l := range map[string]Limit{"daily": p.Limits.Daily, "weekly": p.Limits.Weekly, "monthly": p.Limits.Monthly} {
		if l.MaxTasks < 0 || l.MaxCoins < 0 {
			return fmt.Errorf("policy: %s limits must not be negative", name)
		}
	}
	if p.Loot.DefaultWeight <= 0 {
		return fmt.Errorf("policy: loot default_weight must be positive")
	}
	for rarity, w := range p.Loot.RarityWeights {
		if w <= 0 {
			return fmt.Errorf("policy: weight for rarity %q must be positive", rarity)
		}
	}
	if p.RetentionDays <= 0 {
		return fmt.Errorf("policy: retention_days must be positive")
	}
	return nil
}
