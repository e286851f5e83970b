package api

// presetSpec is one cron job a preset expands into. suffix is only used
// when a preset produces more than one job ("${id}_1", "${id}_2", ...).
type presetSpec struct {
	suffix int
	label  string
	cron   CronSpec
}

func (p presetSpec) name(id string) string {
	if p.label == "" {
		return id
	}
	return id + " (" + p.label + ")"
}

// presetCatalogue is the fixed §6 preset list. "twice_daily" is the one
// preset that expands to more than one job.
var presetCatalogue = map[string][]presetSpec{
	"daily_2am": {
		{suffix: 1, cron: CronSpec{Hour: 2, Minute: 0}},
	},
	"weekly_sunday_1am": {
		{suffix: 1, cron: CronSpec{Hour: 1, Minute: 0, DayOfWeek: "sun"}},
	},
	"hourly": {
		{suffix: 1, cron: CronSpec{Expression: "0 * * * *"}},
	},
	"every_30_minutes": {
		{suffix: 1, cron: CronSpec{Expression: "*/30 * * * *"}},
	},
	"twice_daily": {
		{suffix: 1, label: "AM", cron: CronSpec{Hour: 2, Minute: 0}},
		{suffix: 2, label: "PM", cron: CronSpec{Hour: 14, Minute: 0}},
	},
}
