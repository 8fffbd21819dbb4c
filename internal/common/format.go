package common

import (
	"fmt"
	"sort"
	"strings"

	"pool-onboarding-go/internal/models"
)

const ReportWidth = 80

// PrintHeader prints a formatted header with title and separators
func PrintHeader(title string) {
	fmt.Println("\n" + strings.Repeat("=", ReportWidth))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", ReportWidth))
}

// PrintFooter prints a formatted footer with message and separators
func PrintFooter(message string) {
	fmt.Println("\n" + strings.Repeat("=", ReportWidth))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", ReportWidth) + "\n")
}

// BoxPrefix returns the appropriate box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// Check renders a boolean as a tick or a cross.
func Check(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

// FormatWhitelist renders per-tranche whitelist flags in tranche order.
func FormatWhitelist(whitelisted map[string]bool) string {
	if len(whitelisted) == 0 {
		return "-"
	}
	tranches := make([]string, 0, len(whitelisted))
	for t := range whitelisted {
		tranches = append(tranches, t)
	}
	sort.Strings(tranches)

	parts := make([]string, len(tranches))
	for i, t := range tranches {
		parts[i] = t + " " + Check(whitelisted[t])
	}
	return strings.Join(parts, ", ")
}

// FormatAgreement renders one pending agreement line.
func FormatAgreement(a models.AgreementSummary) string {
	line := fmt.Sprintf("%s [%s] %s", a.Tranche, a.State, a.Name)
	if a.EnvelopeId != "" {
		line += " envelope " + a.EnvelopeId
	}
	return line
}

// FormatPropagation summarizes a propagation run on one line.
func FormatPropagation(r *models.PropagationResult) string {
	if !r.Eligible {
		return fmt.Sprintf("%s/%s not eligible (%s)", r.PoolId, r.Tranche, r.Reason)
	}
	return fmt.Sprintf("%s/%s whitelisted %d, skipped %d, failed %d",
		r.PoolId, r.Tranche, len(r.Whitelisted), len(r.Skipped), len(r.Failed))
}
