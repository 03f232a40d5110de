package devices

import (
	"fmt"

	"github.com/KevinKickass/boardlink/internal/types"
	"go.uber.org/zap"
)

type Composer struct {
	loader *ProfileLoader
	logger *zap.Logger
}

func NewComposer(loader *ProfileLoader, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		loader: loader,
		logger: logger,
	}
}

// ComposeProfile loads a board profile and merges the components of its
// shields. The result has no shield references left and is checked for
// duplicate names and pins used twice.
func (c *Composer) ComposeProfile(name string) (*types.BoardProfileDefinition, error) {
	base, err := c.loader.Load(name)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Composing board profile",
		zap.String("profile", base.Profile.ID),
		zap.Int("shields", len(base.Shields)))

	// the loader caches base, so it is copied before merging
	profile := &types.BoardProfileDefinition{
		Profile:        base.Profile,
		I2CDelayMicros: base.I2CDelayMicros,
		Components:     append([]types.ComponentDefinition(nil), base.Components...),
	}

	for i, ref := range base.Shields {
		c.logger.Debug("Processing shield",
			zap.Int("position", i),
			zap.String("module", ref.Module),
			zap.String("prefix", ref.Prefix))

		shield, err := c.loader.LoadShield(ref.Module)
		if err != nil {
			return nil, fmt.Errorf("failed to load shield at position %d: %w", i, err)
		}

		for _, comp := range shield.Components {
			profile.Components = append(profile.Components, placeComponent(comp, ref))
		}
	}

	if err := checkConflicts(profile.Components); err != nil {
		return nil, fmt.Errorf("profile %s: %w", base.Profile.ID, err)
	}

	c.logger.Info("Board profile composition complete",
		zap.String("profile", profile.Profile.ID),
		zap.Int("components", len(profile.Components)))

	return profile, nil
}

// placeComponent applies a shield reference's prefix and pin offset
func placeComponent(comp types.ComponentDefinition, ref types.ShieldReference) types.ComponentDefinition {
	if ref.Prefix != "" {
		comp.Name = fmt.Sprintf("%s.%s", ref.Prefix, comp.Name)
	}
	if ref.PinOffset == 0 {
		return comp
	}

	if comp.Pin != nil {
		n := *comp.Pin + ref.PinOffset
		comp.Pin = &n
	}
	if comp.Type == types.ComponentSerial && comp.Port >= 8 {
		comp.RxPin += ref.PinOffset
		comp.TxPin += ref.PinOffset
	}
	return comp
}

func checkConflicts(components []types.ComponentDefinition) error {
	names := make(map[string]struct{}, len(components))
	pins := make(map[int]string)
	channels := make(map[int]string)

	claim := func(n int, owner string) error {
		if prev, ok := pins[n]; ok {
			return fmt.Errorf("pin %d used by both %s and %s", n, prev, owner)
		}
		pins[n] = owner
		return nil
	}

	for _, comp := range components {
		if _, ok := names[comp.Name]; ok {
			return fmt.Errorf("duplicate component name %q", comp.Name)
		}
		names[comp.Name] = struct{}{}

		if comp.Pin != nil {
			if err := claim(*comp.Pin, comp.Name); err != nil {
				return err
			}
		}
		if comp.AnalogChannel != nil {
			ch := *comp.AnalogChannel
			if prev, ok := channels[ch]; ok {
				return fmt.Errorf("analog channel %d used by both %s and %s", ch, prev, comp.Name)
			}
			channels[ch] = comp.Name
		}
		if comp.Type == types.ComponentSerial && comp.Port >= 8 {
			if err := claim(comp.RxPin, comp.Name); err != nil {
				return err
			}
			if err := claim(comp.TxPin, comp.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
