package parser

import (
	"testing"

	"metroheat/models"
)

func TestValidateListing(t *testing.T) {
	tests := []struct {
		name    string
		listing *models.ListingRecord
		wantErr bool
	}{
		{
			name: "valid listing",
			listing: &models.ListingRecord{
				Address:   "952 Walker Rd",
				ZIP:       "22066",
				DetailRef: "/VA/Great-Falls/952-Walker-Rd-22066/home/174503330",
			},
			wantErr: false,
		},
		{
			name: "missing address",
			listing: &models.ListingRecord{
				ZIP:       "22066",
				DetailRef: "/VA/Great-Falls/952-Walker-Rd-22066/home/174503330",
			},
			wantErr: true,
		},
		{
			name: "missing detail reference",
			listing: &models.ListingRecord{
				Address: "952 Walker Rd",
				ZIP:     "22066",
			},
			wantErr: true,
		},
		{
			name: "unknown detail reference",
			listing: &models.ListingRecord{
				Address:   "952 Walker Rd",
				ZIP:       "22066",
				DetailRef: "/UNKNOWN/home/0",
			},
			wantErr: true,
		},
		{
			name:    "nil listing",
			listing: nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateListing(tt.listing)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateListing() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeSpace(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "tabs and newlines", input: "Heating\t Fuel:\n Gas", expected: "Heating Fuel: Gas"},
		{name: "leading and trailing", input: "  Forced Air  ", expected: "Forced Air"},
		{name: "already clean", input: "Heat Pump", expected: "Heat Pump"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeSpace(tt.input); got != tt.expected {
				t.Errorf("NormalizeSpace(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeZIP(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "1609", expected: "01609"},
		{input: " 22066 ", expected: "22066"},
		{input: "", expected: ""},
	}

	for _, tt := range tests {
		if got := NormalizeZIP(tt.input); got != tt.expected {
			t.Errorf("NormalizeZIP(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
