// Package locations expands targeting config into the "City, ST" strings
// the directory searches expect.
package locations

import (
	"sort"
	"strings"
)

// majorCities lists the metro areas worth scraping per state.
var majorCities = map[string][]string{
	"AL": {"Birmingham", "Montgomery", "Huntsville", "Mobile"},
	"AK": {"Anchorage", "Fairbanks", "Juneau"},
	"AZ": {"Phoenix", "Tucson", "Mesa", "Scottsdale"},
	"AR": {"Little Rock", "Fort Smith", "Fayetteville"},
	"CA": {"Los Angeles", "San Francisco", "San Diego", "San Jose", "Sacramento", "Oakland", "Fresno"},
	"CO": {"Denver", "Colorado Springs", "Aurora", "Fort Collins"},
	"CT": {"Hartford", "New Haven", "Stamford", "Bridgeport"},
	"DE": {"Wilmington", "Dover", "Newark"},
	"FL": {"Miami", "Orlando", "Tampa", "Jacksonville", "Fort Lauderdale", "St Petersburg"},
	"GA": {"Atlanta", "Savannah", "Augusta", "Columbus"},
	"HI": {"Honolulu", "Hilo", "Kailua"},
	"ID": {"Boise", "Idaho Falls", "Meridian"},
	"IL": {"Chicago", "Springfield", "Naperville", "Rockford"},
	"IN": {"Indianapolis", "Fort Wayne", "Evansville", "South Bend"},
	"IA": {"Des Moines", "Cedar Rapids", "Iowa City"},
	"KS": {"Wichita", "Kansas City", "Topeka", "Overland Park"},
	"KY": {"Louisville", "Lexington", "Bowling Green"},
	"LA": {"New Orleans", "Baton Rouge", "Shreveport"},
	"ME": {"Portland", "Bangor", "Lewiston"},
	"MD": {"Baltimore", "Annapolis", "Rockville", "Frederick"},
	"MA": {"Boston", "Worcester", "Springfield", "Cambridge"},
	"MI": {"Detroit", "Grand Rapids", "Ann Arbor", "Lansing"},
	"MN": {"Minneapolis", "St Paul", "Rochester", "Duluth"},
	"MS": {"Jackson", "Gulfport", "Hattiesburg"},
	"MO": {"Kansas City", "St Louis", "Springfield", "Columbia"},
	"MT": {"Billings", "Missoula", "Great Falls"},
	"NE": {"Omaha", "Lincoln", "Bellevue"},
	"NV": {"Las Vegas", "Reno", "Henderson"},
	"NH": {"Manchester", "Nashua", "Concord"},
	"NJ": {"Newark", "Jersey City", "Trenton", "Princeton"},
	"NM": {"Albuquerque", "Santa Fe", "Las Cruces"},
	"NY": {"New York", "Buffalo", "Rochester", "Albany", "Syracuse"},
	"NC": {"Charlotte", "Raleigh", "Durham", "Greensboro", "Wilmington"},
	"ND": {"Fargo", "Bismarck", "Grand Forks"},
	"OH": {"Columbus", "Cleveland", "Cincinnati", "Toledo", "Akron"},
	"OK": {"Oklahoma City", "Tulsa", "Norman"},
	"OR": {"Portland", "Salem", "Eugene", "Bend"},
	"PA": {"Philadelphia", "Pittsburgh", "Allentown", "Harrisburg"},
	"RI": {"Providence", "Warwick", "Cranston"},
	"SC": {"Charleston", "Columbia", "Greenville", "Myrtle Beach"},
	"SD": {"Sioux Falls", "Rapid City", "Aberdeen"},
	"TN": {"Nashville", "Memphis", "Knoxville", "Chattanooga"},
	"TX": {"Houston", "Dallas", "Austin", "San Antonio", "Fort Worth", "El Paso"},
	"UT": {"Salt Lake City", "Provo", "Ogden", "St George"},
	"VT": {"Burlington", "Montpelier", "Rutland"},
	"VA": {"Richmond", "Virginia Beach", "Arlington", "Norfolk", "Alexandria"},
	"WA": {"Seattle", "Tacoma", "Spokane", "Bellevue"},
	"WV": {"Charleston", "Huntington", "Morgantown"},
	"WI": {"Milwaukee", "Madison", "Green Bay"},
	"WY": {"Cheyenne", "Casper", "Laramie"},
	"DC": {"Washington"},
}

// Expand builds the location list for a run. Explicit cities win outright;
// otherwise each targeted state expands to its major cities, and no states
// at all means the whole country.
func Expand(states, cities []string) []string {
	if len(cities) > 0 {
		return cities
	}

	target := states
	if len(target) == 0 {
		target = make([]string, 0, len(majorCities))
		for state := range majorCities {
			target = append(target, state)
		}
		sort.Strings(target)
	}

	var out []string
	for _, state := range target {
		state = strings.ToUpper(strings.TrimSpace(state))
		for _, city := range majorCities[state] {
			out = append(out, city+", "+state)
		}
	}
	return out
}
