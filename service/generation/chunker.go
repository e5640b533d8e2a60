package generation

import (
	"SceneToVideo-server/config"
	"SceneToVideo-server/models"
)

// ChunkShots 按顺序贪心装箱：加入下一个镜头会超过 capacity 且当前分段非空时另起一段。
// 自身超过 capacity 的镜头单独成段。
func ChunkShots(shots []models.Shot, capacity float64) [][]models.Shot {
	var chunks [][]models.Shot
	var current []models.Shot
	var sum float64
	for _, shot := range shots {
		if sum+shot.Duration > capacity && len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
			sum = 0
		}
		current = append(current, shot)
		sum += shot.Duration
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

func chunkDuration(chunk []models.Shot) float64 {
	var sum float64
	for _, s := range chunk {
		sum += s.Duration
	}
	return sum
}

// ShotRanges 依次累加时长，得到每个镜头的 [start, end)
func ShotRanges(chunk []models.Shot) models.ShotRanges {
	ranges := make(models.ShotRanges, 0, len(chunk))
	var start float64
	for _, s := range chunk {
		ranges = append(ranges, models.ShotRange{ShotId: s.ID, Start: start, End: start + s.Duration})
		start += s.Duration
	}
	return ranges
}

func shotIDs(chunk []models.Shot) models.StringSlice {
	ids := make(models.StringSlice, 0, len(chunk))
	for _, s := range chunk {
		ids = append(ids, s.ID)
	}
	return ids
}

// DurationTier 默认用长档位；仅单镜头且短档位放得下时用短档位（成本考虑）
func DurationTier(chunk []models.Shot, g config.Generation) int {
	if len(chunk) <= 1 && chunkDuration(chunk)+g.SafetyBuffer <= float64(g.DurationTiers.Short) {
		return g.DurationTiers.Short
	}
	return g.DurationTiers.Long
}
