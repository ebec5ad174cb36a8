package analysis

import "legaladvisor/internal/models"

type localizedBundle struct {
	key             string
	title           string
	findings        []models.Finding
	recommendations []string
	references      []string
}

// bundles holds the two canned analyses per locale, in the same order for both locales.
var bundles = map[models.Locale][]localizedBundle{
	models.LocaleArabic: {
		{
			key:   "contract",
			title: "تحليل عقد قانوني",
			findings: []models.Finding{
				{Severity: models.SeverityHigh, Text: "البند الخامس يفتقر إلى تحديد واضح لآلية فسخ العقد"},
				{Severity: models.SeverityMedium, Text: "مدة الإشعار المنصوص عليها أقل من الحد المتعارف عليه"},
				{Severity: models.SeverityLow, Text: "بعض المصطلحات تحتاج إلى تعريف أدق في ملحق التعريفات"},
			},
			recommendations: []string{
				"إضافة بند صريح يحدد شروط وإجراءات فسخ العقد",
				"تمديد مدة الإشعار إلى ثلاثين يوماً على الأقل",
				"إرفاق ملحق بالتعريفات القانونية المستخدمة",
			},
			references: []string{
				"نظام المعاملات المدنية - المادة 107",
				"نظام المحاكم التجارية - المادة 24",
			},
		},
		{
			key:   "lawsuit",
			title: "تحليل وثيقة قضائية",
			findings: []models.Finding{
				{Severity: models.SeverityHigh, Text: "لم يتم إرفاق المستندات المؤيدة للدعوى"},
				{Severity: models.SeverityMedium, Text: "صياغة الطلبات الختامية تحتمل أكثر من تفسير"},
				{Severity: models.SeverityLow, Text: "بيانات أحد الأطراف غير مكتملة"},
			},
			recommendations: []string{
				"استكمال المستندات الثبوتية قبل موعد الجلسة",
				"إعادة صياغة الطلبات بشكل محدد وقابل للتنفيذ",
				"التحقق من بيانات الأطراف وعناوين التبليغ",
			},
			references: []string{
				"نظام المرافعات الشرعية - المادة 41",
				"نظام الإثبات - المادة 3",
			},
		},
	},
	models.LocaleEnglish: {
		{
			key:   "contract",
			title: "Contract Analysis",
			findings: []models.Finding{
				{Severity: models.SeverityHigh, Text: "Clause 5 lacks a clear termination mechanism"},
				{Severity: models.SeverityMedium, Text: "The notice period is shorter than customary"},
				{Severity: models.SeverityLow, Text: "Some terms need a more precise definition in the glossary annex"},
			},
			recommendations: []string{
				"Add an explicit clause setting out termination conditions and procedure",
				"Extend the notice period to at least thirty days",
				"Attach an annex defining the legal terms used",
			},
			references: []string{
				"Civil Transactions Law - Article 107",
				"Commercial Courts Law - Article 24",
			},
		},
		{
			key:   "lawsuit",
			title: "Lawsuit Document Analysis",
			findings: []models.Finding{
				{Severity: models.SeverityHigh, Text: "Supporting documents for the claim are not attached"},
				{Severity: models.SeverityMedium, Text: "The final requests are open to more than one interpretation"},
				{Severity: models.SeverityLow, Text: "One party's details are incomplete"},
			},
			recommendations: []string{
				"Complete the evidentiary documents before the hearing date",
				"Rephrase the requests in specific, enforceable terms",
				"Verify the parties' details and service addresses",
			},
			references: []string{
				"Law of Procedure Before Sharia Courts - Article 41",
				"Law of Evidence - Article 3",
			},
		},
	},
}

// ocrTexts are the canned "extracted" documents, three per locale.
var ocrTexts = map[models.Locale][]string{
	models.LocaleArabic: {
		"عقد إيجار\nتم الاتفاق بين الطرف الأول (المؤجر) والطرف الثاني (المستأجر) على تأجير العقار الموصوف أدناه لمدة سنة قابلة للتجديد، مقابل أجرة سنوية تدفع على دفعتين.",
		"صحيفة دعوى\nيتقدم المدعي بهذه الدعوى ضد المدعى عليه للمطالبة بسداد المبلغ المستحق بموجب عقد التوريد المؤرخ، مع التعويض عن الأضرار الناتجة عن التأخير.",
		"عقد عمل\nيلتزم الطرف الثاني بأداء العمل المتفق عليه تحت إدارة وإشراف الطرف الأول، مقابل أجر شهري، وتسري على هذا العقد أحكام نظام العمل.",
	},
	models.LocaleEnglish: {
		"Lease Agreement\nThe first party (landlord) and the second party (tenant) agree to lease the property described below for one renewable year, against an annual rent payable in two installments.",
		"Statement of Claim\nThe plaintiff files this claim against the defendant demanding payment of the amount due under the dated supply contract, with compensation for damages caused by the delay.",
		"Employment Contract\nThe second party undertakes to perform the agreed work under the direction and supervision of the first party, against a monthly wage, subject to the provisions of the Labor Law.",
	},
}

// Titles returns every title the simulator can produce for locale.
func Titles(locale models.Locale) []string {
	list := bundles[normalize(locale)]
	out := make([]string, 0, len(list))
	for _, b := range list {
		out = append(out, b.title)
	}
	return out
}

// OCRTexts returns the canned extracted texts for locale.
func OCRTexts(locale models.Locale) []string {
	return append([]string(nil), ocrTexts[normalize(locale)]...)
}

func normalize(locale models.Locale) models.Locale {
	if locale.Valid() {
		return locale
	}
	return models.LocaleArabic
}
