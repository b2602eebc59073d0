package main

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// buildWorkOrderPDF renders the official work order for one report.
func buildWorkOrderPDF(report Report) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Road Defect Work Order")

	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("Work order ref: %s", report.ID))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Reported: %s", formatEpochMillis(report.Timestamp)))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Reported by: %s", report.UserName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Status: %s", report.Status))
	pdf.Ln(7)
	department := string(report.Department)
	if department == "" {
		department = "Unassigned"
	}
	pdf.Cell(0, 8, fmt.Sprintf("Department: %s", department))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, "Assessment")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	if report.Analysis != nil {
		pdf.Cell(0, 6, fmt.Sprintf("- Severity: %d / 4", report.Analysis.Severity))
		pdf.Ln(6)
		if len(report.Analysis.DamageTypes) > 0 {
			pdf.Cell(0, 6, fmt.Sprintf("- Damage: %s", strings.Join(report.Analysis.DamageTypes, ", ")))
			pdf.Ln(6)
		}
		if report.Analysis.Description != "" {
			pdf.MultiCell(0, 6, fmt.Sprintf("- Notes: %s", report.Analysis.Description), "", "L", false)
		}
	} else {
		pdf.Cell(0, 6, "- Awaiting assessment")
		pdf.Ln(6)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, "Location")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	if report.Location != nil {
		pdf.Cell(0, 6, fmt.Sprintf("- Coordinates: %.6f, %.6f (%s)", report.Location.Lat, report.Location.Lng, report.LocationSource))
		pdf.Ln(6)
	} else {
		pdf.Cell(0, 6, "- Location not captured")
		pdf.Ln(6)
	}
	if report.LocationAddress != "" {
		pdf.MultiCell(0, 6, fmt.Sprintf("- Address: %s", report.LocationAddress), "", "L", false)
	}

	if report.UserDescription != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, "Citizen description")
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 6, report.UserDescription, "", "L", false)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, "Assignment")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	if report.AssignedContractorID != "" {
		pdf.Cell(0, 6, fmt.Sprintf("- Contractor: %s", report.AssignedContractorID))
		pdf.Ln(6)
	}
	if report.AssignedWardID != "" {
		pdf.Cell(0, 6, fmt.Sprintf("- Ward: %s", report.AssignedWardID))
		pdf.Ln(6)
	}
	if report.AssignedContractorID == "" && report.AssignedWardID == "" {
		pdf.Cell(0, 6, "- Not yet assigned")
		pdf.Ln(6)
	}
	if report.ResolvedTimestamp != nil {
		pdf.Cell(0, 6, fmt.Sprintf("- Resolved: %s", formatEpochMillis(*report.ResolvedTimestamp)))
		pdf.Ln(6)
	}

	buffer := bytes.NewBuffer(nil)
	if err := pdf.Output(buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func formatEpochMillis(millis int64) string {
	return time.UnixMilli(millis).UTC().Format("2006-01-02 15:04 MST")
}
