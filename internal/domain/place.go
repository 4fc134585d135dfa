package domain

import (
	"math"
	"strings"
	"time"
)

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// RawPlace mirrors the subset of the Places API (New) place resource we request.
type RawPlace struct {
	ID          string `json:"id"`
	DisplayName struct {
		Text         string `json:"text"`
		LanguageCode string `json:"languageCode,omitempty"`
	} `json:"displayName"`
	Types               []string      `json:"types,omitempty"`
	FormattedAddress    string        `json:"formattedAddress,omitempty"`
	Location            *RawLatLng    `json:"location,omitempty"`
	Rating              *float64      `json:"rating,omitempty"`
	UserRatingCount     *int          `json:"userRatingCount,omitempty"`
	PriceLevel          string        `json:"priceLevel,omitempty"`
	NationalPhoneNumber string        `json:"nationalPhoneNumber,omitempty"`
	WebsiteURI          string        `json:"websiteUri,omitempty"`
	RegularOpeningHours *RawOpenHours `json:"regularOpeningHours,omitempty"`
}

type RawLatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type RawOpenHours struct {
	Periods []RawPeriod `json:"periods"`
}

type RawPeriod struct {
	Open  *RawTimePoint `json:"open,omitempty"`
	Close *RawTimePoint `json:"close,omitempty"`
}

// RawTimePoint day 0 is Sunday.
type RawTimePoint struct {
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// PlaceID returns the bare identifier without the "places/" resource prefix.
func (r RawPlace) PlaceID() string {
	return strings.TrimPrefix(strings.TrimSpace(r.ID), "places/")
}

// Place is the flat record persisted by every sink.
type Place struct {
	ID       string        `json:"id" dynamodbav:"id"`
	Name     string        `json:"name" dynamodbav:"name"`
	Types    []string      `json:"types" dynamodbav:"types"`
	Contact  Contact       `json:"contact" dynamodbav:"contact"`
	Location PlaceLocation `json:"location" dynamodbav:"location"`
	Details  Details       `json:"details" dynamodbav:"details"`
	Metadata Metadata      `json:"metadata" dynamodbav:"metadata"`
}

type Contact struct {
	Phone   string   `json:"phone" dynamodbav:"phone"`
	Website string   `json:"website" dynamodbav:"website"`
	Emails  []string `json:"emails,omitempty" dynamodbav:"emails,omitempty"`
}

type PlaceLocation struct {
	Address    string   `json:"address" dynamodbav:"address"`
	City       string   `json:"city" dynamodbav:"city"`
	District   string   `json:"district" dynamodbav:"district"`
	PostalCode string   `json:"postal_code" dynamodbav:"postal_code"`
	Latitude   *float64 `json:"latitude" dynamodbav:"latitude"`
	Longitude  *float64 `json:"longitude" dynamodbav:"longitude"`
}

type Details struct {
	Rating           *float64            `json:"rating" dynamodbav:"rating"`
	UserRatingsTotal *int                `json:"user_ratings_total" dynamodbav:"user_ratings_total"`
	PriceLevel       *int                `json:"price_level" dynamodbav:"price_level"`
	OpeningHours     map[string][]string `json:"opening_hours,omitempty" dynamodbav:"opening_hours,omitempty"`
}

type Metadata struct {
	RetrievedAt time.Time `json:"retrieved_at" dynamodbav:"retrieved_at"`
	SearchTerm  string    `json:"search_term" dynamodbav:"search_term"`
}
