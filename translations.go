package gtfs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/transitboard/gtfs/constants"
	"github.com/transitboard/gtfs/csv"
	"github.com/transitboard/gtfs/performance"
	"github.com/transitboard/gtfs/warnings"
	"golang.org/x/text/language"
)

// DefaultLanguage selects a stop's original, untranslated name.
const DefaultLanguage = "default"

// applyTranslations overlays translated stop names from translations.txt
// onto the loaded stops. The table comes in two layouts, detected from the
// header: the standard table-based one (table_name, field_name, language,
// translation, record_id, field_value) and a simple three-column one
// (trans_id, translation, lang) keyed by the stop's original name.
func applyTranslations(dir string, stops map[string]*Stop, metrics *performance.LoadMetrics, warn func(warnings.StaticWarning)) error {
	stopTimer := metrics.Start("parse " + string(constants.TranslationsFile))
	defer stopTimer()
	table, err := openTable(dir, constants.TranslationsFile, false, warn)
	if err != nil {
		return err
	}
	if table == nil {
		return nil
	}
	defer table.Close()

	header := map[string]bool{}
	for _, col := range table.Header() {
		header[col] = true
	}
	switch {
	case header["table_name"]:
		parseTableTranslations(table, stops, warn)
	case header["trans_id"]:
		parseSimpleTranslations(table, stops, warn)
	default:
		warn(warnings.TableSkipped{
			Table:  constants.TranslationsFile,
			Reason: "unrecognized header layout",
		})
		return nil
	}
	if err := table.Err(); err != nil {
		warn(warnings.TableTruncated{Table: constants.TranslationsFile, Row: table.RowNumber(), Err: err})
	}
	return nil
}

func parseTableTranslations(table *csv.Table, stops map[string]*Stop, warn func(warnings.StaticWarning)) {
	tableCol := table.Required("table_name")
	fieldCol := table.Required("field_name")
	languageCol := table.Required("language")
	translationCol := table.Required("translation")
	recordCol := table.Optional("record_id")
	fieldValueCol := table.Optional("field_value")
	if missing := table.MissingRequiredColumns(); missing != nil {
		warn(warnings.TableSkipped{
			Table:  constants.TranslationsFile,
			Reason: "missing required columns: " + strings.Join(missing, ", "),
		})
		return
	}

	byName := stopsByName(stops)
	for table.Next() {
		tableName := tableCol.Read()
		fieldName := fieldCol.Read()
		lang := languageCol.Read()
		translation := translationCol.Read()
		if keys := table.MissingRowKeys(); len(keys) > 0 {
			warn(warnings.RowSkipped{
				Table:  constants.TranslationsFile,
				Row:    table.RowNumber(),
				Reason: "missing " + strings.Join(keys, ", "),
			})
			continue
		}
		// Rows for other tables and fields are valid GTFS; they are just
		// not stop names.
		if tableName != "stops" || fieldName != "stop_name" {
			continue
		}
		if recordID := recordCol.Read(); recordID != "" {
			stop, ok := stops[recordID]
			if !ok {
				warn(warnings.RowSkipped{
					Table:  constants.TranslationsFile,
					Row:    table.RowNumber(),
					Reason: fmt.Sprintf("unknown record_id %q", recordID),
				})
				continue
			}
			setTranslation(stop, lang, translation)
			continue
		}
		fieldValue := fieldValueCol.Read()
		if fieldValue == "" {
			warn(warnings.RowSkipped{
				Table:  constants.TranslationsFile,
				Row:    table.RowNumber(),
				Reason: "neither record_id nor field_value is set",
			})
			continue
		}
		matched := byName[fieldValue]
		if len(matched) == 0 {
			warn(warnings.RowSkipped{
				Table:  constants.TranslationsFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("no stop named %q", fieldValue),
			})
			continue
		}
		for _, stop := range matched {
			setTranslation(stop, lang, translation)
		}
	}
}

func parseSimpleTranslations(table *csv.Table, stops map[string]*Stop, warn func(warnings.StaticWarning)) {
	nameCol := table.Required("trans_id")
	translationCol := table.Required("translation")
	languageCol := table.Required("lang")
	if missing := table.MissingRequiredColumns(); missing != nil {
		warn(warnings.TableSkipped{
			Table:  constants.TranslationsFile,
			Reason: "missing required columns: " + strings.Join(missing, ", "),
		})
		return
	}

	byName := stopsByName(stops)
	for table.Next() {
		name := nameCol.Read()
		translation := translationCol.Read()
		lang := languageCol.Read()
		if keys := table.MissingRowKeys(); len(keys) > 0 {
			warn(warnings.RowSkipped{
				Table:  constants.TranslationsFile,
				Row:    table.RowNumber(),
				Reason: "missing " + strings.Join(keys, ", "),
			})
			continue
		}
		matched := byName[name]
		if len(matched) == 0 {
			warn(warnings.RowSkipped{
				Table:  constants.TranslationsFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("no stop named %q", name),
			})
			continue
		}
		for _, stop := range matched {
			setTranslation(stop, lang, translation)
		}
	}
}

func stopsByName(stops map[string]*Stop) map[string][]*Stop {
	byName := make(map[string][]*Stop, len(stops))
	for _, stop := range stops {
		byName[stop.Name] = append(byName[stop.Name], stop)
	}
	return byName
}

func setTranslation(stop *Stop, lang, translation string) {
	if stop.Translations == nil {
		stop.Translations = map[string]string{}
	}
	stop.Translations[lang] = translation
}

// DisplayName returns the stop's name in the requested language, falling
// back to the original name when no translation matches. The empty string
// and DefaultLanguage always select the original name. Matching follows
// BCP 47, so a request for "fr-BE" matches a stored "fr" translation.
func (f *Feed) DisplayName(stop *Stop, lang string) string {
	if stop == nil {
		return ""
	}
	if lang == "" || lang == DefaultLanguage || len(stop.Translations) == 0 {
		return stop.Name
	}
	if translated, ok := stop.Translations[lang]; ok {
		return translated
	}
	want, err := language.Parse(lang)
	if err != nil {
		return stop.Name
	}
	// Keys are visited in stable order so repeated lookups agree.
	keys := make([]string, 0, len(stop.Translations))
	for k := range stop.Translations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var tags []language.Tag
	var values []string
	for _, k := range keys {
		tag, err := language.Parse(k)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		values = append(values, stop.Translations[k])
	}
	if len(tags) == 0 {
		return stop.Name
	}
	if _, i, conf := language.NewMatcher(tags).Match(want); conf > language.No {
		return values[i]
	}
	return stop.Name
}
