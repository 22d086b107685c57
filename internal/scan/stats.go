package scan

// ComputeStats recomputes aggregate counters from the document's current
// findings and patch plan. Unknown-severity findings count toward
// TotalFindings but not toward the three severity buckets.
func (d *Document) ComputeStats() {
	files := make(map[string]struct{}, len(d.Findings))
	stats := Stats{TotalFindings: len(d.Findings)}

	for _, f := range d.Findings {
		files[f.File] = struct{}{}
		switch f.Severity {
		case SeverityHigh:
			stats.HighSeverity++
		case SeverityMedium:
			stats.MediumSeverity++
		case SeverityLow:
			stats.LowSeverity++
		}
	}
	stats.TotalFilesScanned = len(files)
	stats.AutoFixable = len(d.PatchPlan)
	d.Stats = stats
}

// ComputeRemediationStats layers the remediation counter on top of
// ComputeStats. The severity buckets stay finding-derived so the scanner's
// counts survive an enrichment pass that produced few or no plan entries.
func (d *Document) ComputeRemediationStats() {
	d.ComputeStats()
	d.Stats.TotalRemediations = len(d.PatchPlan)
}

// FindingIDs returns the ids of all findings in document order.
func (d *Document) FindingIDs() []string {
	ids := make([]string, len(d.Findings))
	for i, f := range d.Findings {
		ids[i] = f.ID
	}
	return ids
}
