package alerts

import (
	"fmt"
	"strconv"
	"time"

	"agribot/internal/models"
)

// Toast icons
const (
	IconLowWater      = "🚰"
	IconCriticalWater = "🚱"
	IconClimate       = "⏰"
	IconWaterOK       = "🚰"
	IconClimateOK     = "✅"
)

// WaterRecoveredText is shared by the critical and low water recoveries.
const WaterRecoveredText = "Water level is back to normal"

// Icon returns the toast icon for a category edge
func Icon(c models.AlertCategory, tr models.Transition) string {
	if tr == models.TransitionRecovered {
		if c == models.CategoryClimate {
			return IconClimateOK
		}
		return IconWaterOK
	}
	switch c {
	case models.CategoryCriticalWater:
		return IconCriticalWater
	case models.CategoryLowWater:
		return IconLowWater
	default:
		return IconClimate
	}
}

// RenderMessage renders the notification text of a category edge. The
// reading time leads in bold, the body follows in italics.
func RenderMessage(c models.AlertCategory, tr models.Transition, r models.Reading, readingTime time.Time) string {
	return fmt.Sprintf("**%s**: *%s*.", readingTime.Format(models.NotificationTimeLayout), body(c, tr, r))
}

func body(c models.AlertCategory, tr models.Transition, r models.Reading) string {
	switch {
	case c == models.CategoryCriticalWater && tr == models.TransitionActivated:
		return "Water level is critically low"
	case c == models.CategoryLowWater && tr == models.TransitionActivated:
		return "Water level is low"
	case c == models.CategoryClimate && tr == models.TransitionActivated:
		return fmt.Sprintf(
			"Suboptimal conditions for greenhouse. Humidity (%s%%) and temperature (%s°C) are not in the optimal range for plant growth",
			num(r.Humidity), num(r.Temperature),
		)
	case c == models.CategoryClimate:
		return fmt.Sprintf(
			"Conditions are back to optimal. Humidity (%s%%) and temperature (%s°C) are now in the optimal range for plant growth",
			num(r.Humidity), num(r.Temperature),
		)
	default:
		return WaterRecoveredText
	}
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
