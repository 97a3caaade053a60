// Package score computes the two derived lead metrics: a completeness
// oriented quality score and a prospect-fit ICP score. Both are 0-100.
package score

import (
	"strings"
	"time"

	"github.com/leadgrid/lead-engine/internal/lead"
)

// Clock supplies the current time for age-sensitive checks.
type Clock interface {
	Now() time.Time
}

// genericEmailPrefixes are mailbox names that signal a shared inbox rather
// than a personal contact.
var genericEmailPrefixes = map[string]bool{
	"info": true, "contact": true, "hello": true, "support": true,
	"admin": true, "sales": true, "billing": true, "office": true,
	"help": true, "service": true, "team": true, "enquiry": true,
	"inquiry": true, "general": true, "mail": true, "webmaster": true,
	"noreply": true,
}

// outdatedPlatforms are site builders whose presence marks a modernization
// opportunity.
var outdatedPlatforms = map[string]bool{
	"weebly": true, "godaddy": true, "jimdo": true,
	"blogger": true, "homestead": true, "tripod": true,
}

// QualityWeights are the per-signal points of the quality score.
type QualityWeights struct {
	BusinessName    int `mapstructure:"business_name"`
	Phone           int `mapstructure:"phone"`
	EmailGeneric    int `mapstructure:"email_generic"`
	EmailPersonal   int `mapstructure:"email_personal"`
	FullAddress     int `mapstructure:"full_address"`
	OwnerName       int `mapstructure:"owner_name"`
	OwnerEmail      int `mapstructure:"owner_email"`
	OwnerLinkedin   int `mapstructure:"owner_linkedin"`
	OwnerTitle      int `mapstructure:"owner_title"`
	OwnerPhone      int `mapstructure:"owner_phone"`
	Website         int `mapstructure:"website"`
	Category        int `mapstructure:"category"`
	EmployeeCount   int `mapstructure:"employee_count"`
	YearEstablished int `mapstructure:"year_established"`
	GoogleRating    int `mapstructure:"google_rating"`
	YelpRating      int `mapstructure:"yelp_rating"`
	SocialEach      int `mapstructure:"social_each"`
	SocialCap       int `mapstructure:"social_cap"`
}

// ICPWeights are the per-signal points of the ICP score. Tiered signals
// (rating, review count, business age) carry one weight per tier.
type ICPWeights struct {
	OwnerName     int `mapstructure:"owner_name"`
	OwnerEmail    int `mapstructure:"owner_email"`
	EmailPersonal int `mapstructure:"email_personal"`
	EmailAny      int `mapstructure:"email_any"`
	OwnerPhone    int `mapstructure:"owner_phone"`
	Phone         int `mapstructure:"phone"`
	OwnerLinkedin int `mapstructure:"owner_linkedin"`

	RatingExcellent int `mapstructure:"rating_excellent"`
	RatingGreat     int `mapstructure:"rating_great"`
	RatingGood      int `mapstructure:"rating_good"`
	RatingFair      int `mapstructure:"rating_fair"`
	ReviewsMany     int `mapstructure:"reviews_many"`
	ReviewsSome     int `mapstructure:"reviews_some"`
	ReviewsFew      int `mapstructure:"reviews_few"`
	ReviewsHandful  int `mapstructure:"reviews_handful"`
	AgeVeteran      int `mapstructure:"age_veteran"`
	AgeEstablished  int `mapstructure:"age_established"`
	AgeYoung        int `mapstructure:"age_young"`
	AgeNew          int `mapstructure:"age_new"`
	BBBAccredited   int `mapstructure:"bbb_accredited"`
	FullAddress     int `mapstructure:"full_address"`

	Website               int `mapstructure:"website"`
	SSL                   int `mapstructure:"ssl"`
	MobileFriendly        int `mapstructure:"mobile_friendly"`
	SocialEach            int `mapstructure:"social_each"`
	SocialCap             int `mapstructure:"social_cap"`
	GoogleBusinessProfile int `mapstructure:"google_business_profile"`
	AdsBoth               int `mapstructure:"ads_both"`
	AdsOne                int `mapstructure:"ads_one"`

	NoWebsite        int `mapstructure:"no_website"`
	OutdatedPlatform int `mapstructure:"outdated_platform"`
	LowRating        int `mapstructure:"low_rating"`
	NoSocials        int `mapstructure:"no_socials"`
	NoAds            int `mapstructure:"no_ads"`
}

// Weights bundles both weight sets.
type Weights struct {
	Quality QualityWeights `mapstructure:"quality"`
	ICP     ICPWeights     `mapstructure:"icp"`
}

// DefaultWeights returns the stock weights. Quality buckets: core fields
// 40, owner info 30, business details 15, online presence 15. ICP buckets:
// reachability 35, business health 25, digital presence 20, opportunity
// signals 20.
func DefaultWeights() Weights {
	return Weights{
		Quality: QualityWeights{
			BusinessName:    8,
			Phone:           10,
			EmailGeneric:    7,
			EmailPersonal:   12,
			FullAddress:     10,
			OwnerName:       10,
			OwnerEmail:      8,
			OwnerLinkedin:   5,
			OwnerTitle:      3,
			OwnerPhone:      4,
			Website:         4,
			Category:        3,
			EmployeeCount:   4,
			YearEstablished: 4,
			GoogleRating:    4,
			YelpRating:      3,
			SocialEach:      3,
			SocialCap:       8,
		},
		ICP: ICPWeights{
			OwnerName:     10,
			OwnerEmail:    10,
			EmailPersonal: 8,
			EmailAny:      3,
			OwnerPhone:    8,
			Phone:         5,
			OwnerLinkedin: 7,

			RatingExcellent: 8,
			RatingGreat:     6,
			RatingGood:      4,
			RatingFair:      2,
			ReviewsMany:     7,
			ReviewsSome:     5,
			ReviewsFew:      3,
			ReviewsHandful:  1,
			AgeVeteran:      5,
			AgeEstablished:  4,
			AgeYoung:        3,
			AgeNew:          1,
			BBBAccredited:   3,
			FullAddress:     2,

			Website:               4,
			SSL:                   1,
			MobileFriendly:        2,
			SocialEach:            2,
			SocialCap:             5,
			GoogleBusinessProfile: 3,
			AdsBoth:               5,
			AdsOne:                3,

			NoWebsite:        5,
			OutdatedPlatform: 4,
			LowRating:        3,
			NoSocials:        4,
			NoAds:            4,
		},
	}
}

// Scorer computes lead scores. It is stateless apart from the clock and
// its weight set.
type Scorer struct {
	clock Clock
	w     Weights
}

// New builds a Scorer with the stock weights.
func New(clock Clock) *Scorer {
	return NewWithWeights(clock, DefaultWeights())
}

// NewWithWeights builds a Scorer with configured weights.
func NewWithWeights(clock Clock, w Weights) *Scorer {
	return &Scorer{clock: clock, w: w}
}

// Apply recomputes both scores in place.
func (s *Scorer) Apply(l *lead.Lead) {
	l.QualityScore = s.Quality(l)
	l.ICPScore = s.ICP(l)
}

// Quality measures how much usable data the record carries. Decision-maker
// contact details weigh the most: a personal mailbox beats a shared one.
func (s *Scorer) Quality(l *lead.Lead) int {
	w := s.w.Quality
	score := 0

	// Core fields
	if l.BusinessName != "" {
		score += w.BusinessName
	}
	if l.Phone != "" {
		score += w.Phone
	}
	if l.Email != "" {
		if isGenericEmail(l.Email) {
			score += w.EmailGeneric
		} else {
			score += w.EmailPersonal
		}
	}
	if l.Address != "" && l.City != "" && l.State != "" {
		score += w.FullAddress
	}

	// Decision maker
	if l.OwnerName != "" {
		score += w.OwnerName
	}
	if l.OwnerEmail != "" {
		score += w.OwnerEmail
	}
	if l.OwnerLinkedin != "" {
		score += w.OwnerLinkedin
	}
	if l.OwnerTitle != "" {
		score += w.OwnerTitle
	}
	if l.OwnerPhone != "" {
		score += w.OwnerPhone
	}

	// Business details
	if l.Website != "" {
		score += w.Website
	}
	if l.Category != "" {
		score += w.Category
	}
	if l.EmployeeCount > 0 {
		score += w.EmployeeCount
	}
	if l.YearEstablished > 0 {
		score += w.YearEstablished
	}

	// Online presence
	if l.GoogleRating > 0 {
		score += w.GoogleRating
	}
	if l.YelpRating > 0 {
		score += w.YelpRating
	}
	socials := countNonEmpty(l.FacebookURL, l.InstagramURL, l.LinkedinURL)
	score += min(socials*w.SocialEach, w.SocialCap)

	return min(score, 100)
}

// ICP measures prospect fit rather than completeness. A thin online
// presence scores points here that it loses on Quality, because a business
// without a website or social accounts is exactly the prospect this
// pipeline exists to find.
func (s *Scorer) ICP(l *lead.Lead) int {
	w := s.w.ICP
	score := 0

	// Reachability
	if l.OwnerName != "" {
		score += w.OwnerName
	}
	switch {
	case l.OwnerEmail != "":
		score += w.OwnerEmail
	case l.Email != "" && !isGenericEmail(l.Email):
		score += w.EmailPersonal
	case l.Email != "":
		score += w.EmailAny
	}
	switch {
	case l.OwnerPhone != "":
		score += w.OwnerPhone
	case l.Phone != "":
		score += w.Phone
	}
	if l.OwnerLinkedin != "" {
		score += w.OwnerLinkedin
	}

	// Business health
	switch {
	case l.GoogleRating >= 4.5:
		score += w.RatingExcellent
	case l.GoogleRating >= 4.0:
		score += w.RatingGreat
	case l.GoogleRating >= 3.5:
		score += w.RatingGood
	case l.GoogleRating >= 3.0:
		score += w.RatingFair
	}
	switch {
	case l.GoogleReviewCount >= 100:
		score += w.ReviewsMany
	case l.GoogleReviewCount >= 50:
		score += w.ReviewsSome
	case l.GoogleReviewCount >= 20:
		score += w.ReviewsFew
	case l.GoogleReviewCount >= 5:
		score += w.ReviewsHandful
	}
	if l.YearEstablished > 0 {
		switch years := s.clock.Now().Year() - l.YearEstablished; {
		case years >= 10:
			score += w.AgeVeteran
		case years >= 5:
			score += w.AgeEstablished
		case years >= 2:
			score += w.AgeYoung
		case years >= 1:
			score += w.AgeNew
		}
	}
	if l.BBBAccredited {
		score += w.BBBAccredited
	}
	if l.Address != "" && l.City != "" && l.State != "" {
		score += w.FullAddress
	}

	// Digital presence
	hasSite := l.Website != "" || l.HasWebsite
	if hasSite {
		score += w.Website
	}
	if l.HasSSL {
		score += w.SSL
	}
	if l.MobileFriendly {
		score += w.MobileFriendly
	}
	socials := countNonEmpty(
		l.FacebookURL, l.InstagramURL, l.LinkedinURL,
		l.TwitterURL, l.YoutubeURL, l.TiktokURL,
	)
	score += min(socials*w.SocialEach, w.SocialCap)
	if l.HasGoogleBusinessProfile {
		score += w.GoogleBusinessProfile
	}
	switch {
	case l.RunsGoogleAds && l.RunsFacebookAds:
		score += w.AdsBoth
	case l.RunsGoogleAds || l.RunsFacebookAds:
		score += w.AdsOne
	}

	// Opportunity signals
	if !hasSite {
		score += w.NoWebsite
	}
	if outdatedPlatforms[strings.ToLower(l.WebsitePlatform)] {
		score += w.OutdatedPlatform
	}
	if l.GoogleRating > 0 && l.GoogleRating < 3.5 && l.GoogleReviewCount > 5 {
		score += w.LowRating
	}
	if socials == 0 {
		score += w.NoSocials
	}
	if hasSite && !l.RunsGoogleAds && !l.RunsFacebookAds {
		score += w.NoAds
	}

	return min(score, 100)
}

func isGenericEmail(email string) bool {
	local, _, ok := strings.Cut(strings.ToLower(email), "@")
	return ok && genericEmailPrefixes[local]
}

func countNonEmpty(values ...string) int {
	n := 0
	for _, v := range values {
		if v != "" {
			n++
		}
	}
	return n
}
