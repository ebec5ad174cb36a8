// Package i18n holds the Arabic and English strings the workflow surfaces.
package i18n

import (
	"context"
	"fmt"

	"golang.org/x/text/language"

	"legaladvisor/internal/models"
)

type Key string

const (
	FilesAttachedPlaceholder Key = "files_attached_placeholder"
	ResponseTemplate         Key = "response_template"
	ResponseFilesLine        Key = "response_files_line"
	ResponseDisclaimer       Key = "response_disclaimer"

	UploadLimitTitle       Key = "upload_limit_title"
	UploadLimitDescription Key = "upload_limit_description"
	UploadFailedTitle      Key = "upload_failed_title"

	SubmitSuccessTitle       Key = "submit_success_title"
	SubmitSuccessDescription Key = "submit_success_description"
	SubmitFailedTitle        Key = "submit_failed_title"
	SubmitFailedDescription  Key = "submit_failed_description"
	SubmitBusyDescription    Key = "submit_busy_description"

	FeedbackSavedTitle        Key = "feedback_saved_title"
	FeedbackSavedDescription  Key = "feedback_saved_description"
	FeedbackFailedTitle       Key = "feedback_failed_title"
	FeedbackFailedDescription Key = "feedback_failed_description"
	FeedbackInvalid           Key = "feedback_invalid"

	AnalysisDoneTitle Key = "analysis_done_title"
)

var catalog = map[models.Locale]map[Key]string{
	models.LocaleArabic: {
		FilesAttachedPlaceholder: "تم إرفاق ملفات للتحليل",
		ResponseTemplate:         "شكراً لاستفسارك القانوني: \"%s\".\n\nبناءً على المعلومات المقدمة، ننصح بمراجعة الأحكام ذات الصلة في القوانين المعمول بها والتأكد من استيفاء جميع الشروط الشكلية والموضوعية.",
		ResponseFilesLine:        "الملفات المرفقة: %s",
		ResponseDisclaimer:       "تنبيه: هذا الرد لأغراض إرشادية فقط ولا يُعد استشارة قانونية ملزمة. يُنصح بمراجعة محامٍ مختص.",

		UploadLimitTitle:       "تجاوز الحد المسموح",
		UploadLimitDescription: "يمكنك رفع %d ملفات كحد أقصى",
		UploadFailedTitle:      "تعذر رفع الملفات",

		SubmitSuccessTitle:       "تم الإرسال",
		SubmitSuccessDescription: "تم تحليل استفسارك بنجاح",
		SubmitFailedTitle:        "خطأ",
		SubmitFailedDescription:  "حدث خطأ أثناء معالجة استفسارك",
		SubmitBusyDescription:    "الخادم مشغول، يرجى المحاولة لاحقاً",

		FeedbackSavedTitle:        "شكراً لك",
		FeedbackSavedDescription:  "تم تسجيل تقييمك",
		FeedbackFailedTitle:       "خطأ",
		FeedbackFailedDescription: "تعذر حفظ التقييم",
		FeedbackInvalid:           "قيمة التقييم غير صالحة",

		AnalysisDoneTitle: "اكتمل التحليل",
	},
	models.LocaleEnglish: {
		FilesAttachedPlaceholder: "Files attached for analysis",
		ResponseTemplate:         "Thank you for your legal inquiry: \"%s\".\n\nBased on the information provided, we recommend reviewing the relevant provisions of the applicable laws and making sure all formal and substantive requirements are met.",
		ResponseFilesLine:        "Attached files: %s",
		ResponseDisclaimer:       "Disclaimer: this response is for guidance only and does not constitute binding legal advice. Please consult a qualified lawyer.",

		UploadLimitTitle:       "Limit exceeded",
		UploadLimitDescription: "You can upload at most %d files",
		UploadFailedTitle:      "Upload failed",

		SubmitSuccessTitle:       "Sent",
		SubmitSuccessDescription: "Your inquiry was analyzed successfully",
		SubmitFailedTitle:        "Error",
		SubmitFailedDescription:  "An error occurred while processing your inquiry",
		SubmitBusyDescription:    "The server is busy, please try again later",

		FeedbackSavedTitle:        "Thank you",
		FeedbackSavedDescription:  "Your rating was recorded",
		FeedbackFailedTitle:       "Error",
		FeedbackFailedDescription: "Could not save your rating",
		FeedbackInvalid:           "Invalid rating value",

		AnalysisDoneTitle: "Analysis complete",
	},
}

// T returns the string for key in locale, formatted with args. Unknown locales fall back to Arabic.
func T(locale models.Locale, key Key, args ...any) string {
	msgs, ok := catalog[locale]
	if !ok {
		msgs = catalog[models.LocaleArabic]
	}
	s, ok := msgs[key]
	if !ok {
		return string(key)
	}
	if len(args) > 0 {
		return fmt.Sprintf(s, args...)
	}
	return s
}

var matcher = language.NewMatcher([]language.Tag{language.Arabic, language.English})

// Negotiate picks ar or en from an Accept-Language header, or fallback when nothing matches.
func Negotiate(acceptLanguage string, fallback models.Locale) models.Locale {
	if acceptLanguage == "" {
		return fallback
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return fallback
	}
	if idx == 1 {
		return models.LocaleEnglish
	}
	return models.LocaleArabic
}

type localeKey struct{}

// WithLocale attaches a locale to ctx.
func WithLocale(ctx context.Context, locale models.Locale) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

// LocaleFrom returns the locale attached to ctx, or fallback.
func LocaleFrom(ctx context.Context, fallback models.Locale) models.Locale {
	if ctx != nil {
		if l, ok := ctx.Value(localeKey{}).(models.Locale); ok && l.Valid() {
			return l
		}
	}
	return fallback
}
