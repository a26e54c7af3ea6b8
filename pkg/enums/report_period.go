package enums

// ReportPeriod is the granularity of a revenue report.
type ReportPeriod string

const (
	ReportPeriodDay   ReportPeriod = "day"
	ReportPeriodMonth ReportPeriod = "month"
	ReportPeriodYear  ReportPeriod = "year"
)

var reportPeriods = valueSet[ReportPeriod]{ReportPeriodDay, ReportPeriodMonth, ReportPeriodYear}

func (p ReportPeriod) String() string { return string(p) }

func (p ReportPeriod) IsValid() bool { return reportPeriods.has(p) }

func ParseReportPeriod(value string) (ReportPeriod, error) {
	return reportPeriods.parse(value, "report period")
}
