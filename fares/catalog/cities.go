package catalog

// StaticCities lists the destinations users may register interest in.
var StaticCities = []string{
	"Warsaw", "Tashkent", "Vienna", "Paris", "Milan", "Rome",
	"New York", "London", "Tokyo", "Berlin", "Barcelona", "Sydney",
	"Dubai", "Los Angeles", "Amsterdam", "Seoul", "Singapore", "Istanbul",
	"Toronto", "Moscow", "Rio de Janeiro", "Cape Town", "Mumbai", "Bangkok",
	"Urgench", "Samarkand", "Osh", "Namangan", "Almaty",
	"Madrid", "Prague", "Budapest", "Hanoi", "Stockholm", "Lisbon",
	"Athens", "Cairo", "Nairobi", "Copenhagen", "Kuala Lumpur", "Helsinki",
	"Dublin", "Edinburgh", "Auckland", "Wellington", "Manila", "Lima",
	"San Francisco", "Chicago", "Vancouver", "Montreal", "Mexico City",
	"Buenos Aires", "São Paulo", "Lagos", "Johannesburg", "Riyadh",
	"Kiev", "Minsk", "Bucharest", "Belfast", "Cardiff",
	"Brisbane", "Melbourne", "Perth", "Adelaide", "Christchurch",
	"Osaka", "Kyoto", "Beijing", "Shanghai", "Guangzhou", "Shenzhen",
	"Delhi", "Kolkata", "Chennai", "Hyderabad", "Bengaluru",
	"Jakarta", "Bangalore", "Colombo", "Male", "Dhaka",
}
