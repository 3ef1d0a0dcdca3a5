package llm

// Category is one label the classifier may choose, with the description
// shown to the model.
type Category struct {
	Name        string
	Description string
}

// UnknownCategory is assigned when classification fails.
const UnknownCategory = "Unknown"

var Categories = []Category{
	{"Abortion", "Sites with neutral or balanced presentation of the issue."},
	{"Pro Choice", "Sites that provide information about or are sponsored by organizations that support legal abortion or offer support to those seeking it."},
	{"Pro Life", "Sites that provide information about or are sponsored by organizations that oppose legal abortion or seek increased restriction."},
	{"Adult Material", "Parent category for adult oriented content."},
	{"Adult Content", "Sites that display full or partial nudity in a sexual context but not sexual activity."},
	{"Nudity", "Sites that offer depictions of nude or seminude human forms."},
	{"Sex", "Sites that depict or graphically describe sexual acts or activity including exhibitionism."},
	{"Sex Education", "Sites that offer educational information about sex and sexuality."},
	{"Lingerie and Swimsuit", "Sites with models in lingerie or swimsuits, including for sale."},
	{"Advocacy Groups", "Sites that promote change or reform in public policy, public opinion, social practice, economic activities."},
	{"Bandwidth", "Parent category for bandwidth intensive content."},
	{"Educational Video", "Sites that host videos with academic/instructional content."},
	{"Entertainment Video", "Entertainment oriented video hosting sites."},
	{"Internet Radio and TV", "Sites providing Internet radio or TV programming."},
	{"Internet Telephony", "Sites enabling VoIP or VoIP software."},
	{"Peer to Peer File Sharing", "Sites offering P2P file sharing client software."},
	{"Personal Network Storage and Backup", "Sites for personal file backup/exchange in the cloud."},
	{"Streaming Media", "Sites that enable streaming media content."},
	{"Surveillance", "Sites for real time monitoring via webcams/cameras."},
	{"Viral Video", "Sites that host viral/popular videos."},
	{"Business and Economy", "Sites sponsored by firms, associations, industry groups or general business."},
	{"Financial Data and Services", "Sites providing financial services or market data."},
	{"Education", "Educational content parent category."},
	{"Information Technology", "Parent category for IT related content."},
	{"Cultural Institutions", "Sites for museums, libraries, heritage, etc."},
	{"Educational Institutions", "Sites for schools, universities, etc."},
	{"Proxy Avoidance", "Sites that bypass web filters via proxy."},
	{"Search Engines and Portals", "General search engines and portals."},
	{"Web Hosting", "Sites offering hosting services."},
	{"Hacking", "Sites related to hacking techniques/tools."},
	{"News and Media", "Parent category for news and media content."},
	{"Alternative Journals", "Non-mainstream news/journal sites."},
	{"Religion", "Parent category for religious content."},
	{"Non Traditional Religions", "Websites about new or less common religions."},
	{"Traditional Religions", "Sites covering major world religions."},
	{"Society and Lifestyle", "Parent category for society and lifestyle content."},
	{"Restaurants and Dining", "Sites about restaurants, recipes, food culture."},
	{"Gay or Lesbian or Bisexual Interest", "LGBTQ+ interest sites."},
	{"Personals and Dating", "Dating and personal ads."},
	{"Alcohol and Tobacco", "Sites promoting/marketing alcohol or tobacco."},
	{"Drugs", "Parent category for drug related content."},
	{"Abused Drugs", "Discussion or remedies for illegal, illicit, or abused drugs."},
	{"Prescribed Medications", "Information about prescription medications."},
	{"Nutrition", "Sites promoting nutritional supplements or diet info."},
}
