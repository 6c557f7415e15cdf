package policy

// defaultSites are recipe sites that publish schema.org Recipe markup.
var defaultSites = []string{
	"101cookbooks.com",
	"allrecipes.com",
	"bbcgoodfood.com",
	"bonappetit.com",
	"budgetbytes.com",
	"cookieandkate.com",
	"cooking.nytimes.com",
	"damndelicious.net",
	"delish.com",
	"eatingwell.com",
	"epicurious.com",
	"food.com",
	"food52.com",
	"foodandwine.com",
	"foodnetwork.com",
	"gimmesomeoven.com",
	"halfbakedharvest.com",
	"jamieoliver.com",
	"justonecookbook.com",
	"kingarthurbaking.com",
	"loveandlemons.com",
	"minimalistbaker.com",
	"myrecipes.com",
	"ohsheglows.com",
	"pinchofyum.com",
	"recipetineats.com",
	"seriouseats.com",
	"simplyrecipes.com",
	"smittenkitchen.com",
	"tasteofhome.com",
	"tasty.co",
	"thekitchn.com",
	"thepioneerwoman.com",
	"thespruceeats.com",
	"skinnytaste.com",
	"sallysbakingaddiction.com",
	"rainbowplantlife.com",
	"hostthetoast.com",
	"twopeasandtheirpod.com",
	"bettycrocker.com",
}
