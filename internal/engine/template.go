package engine

import (
	"regexp"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Плейсхолдер {{expr}} внутри строковых скаляров конфигурации.
var placeholderRe = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Ссылка на поле триггера: "Trigger <n>.<field...>".
var triggerRefRe = regexp.MustCompile(`^Trigger\s+(\d+)\.(.+)$`)

// Номер в хвосте головного токена выражения ("gpt 3", "GPT Task 12").
var trailingNumberRe = regexp.MustCompile(`(\d+)\s*$`)

// Числовой токен в произвольной позиции ключа, метки или ID узла.
var numberTokenRe = regexp.MustCompile(`\d+`)

// ResolveConfig разрешает все плейсхолдеры в конфигурации узла.
// Структура конфигурации сохраняется; меняются только строковые скаляры.
func ResolveConfig(config map[string]any, ec *ExecutionContext) map[string]any {
	if config == nil {
		return make(map[string]any)
	}
	resolved, ok := ResolveValue(config, ec).(map[string]any)
	if !ok {
		return config
	}
	return resolved
}

// ResolveValue рекурсивно обходит значение, разрешая плейсхолдеры
// в каждом строковом скаляре. Нестроковые скаляры и структура
// контейнеров возвращаются без изменений.
func ResolveValue(value any, ec *ExecutionContext) any {
	switch v := value.(type) {
	case string:
		return resolveString(v, ec)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			result[key] = ResolveValue(val, ec)
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = ResolveValue(val, ec)
		}
		return result

	default:
		return value
	}
}

// resolveString разрешает плейсхолдеры в одной строке.
//
// Строка, целиком состоящая из одного плейсхолдера, подставляется
// типизированно: значение возвращается как есть, без сериализации.
// Так ссылки внутри распарсенного JSON-тела становятся типизированными
// JSON-значениями, а не сырым текстом.
func resolveString(s string, ec *ExecutionContext) any {
	if !strings.Contains(s, "{{") {
		return s
	}

	// Целиком один плейсхолдер — типизированная подстановка
	trimmed := strings.TrimSpace(s)
	if m := placeholderRe.FindStringSubmatch(trimmed); m != nil && m[0] == trimmed {
		value, found := resolveExpression(m[1], ec)
		if !found {
			return ""
		}
		return value
	}

	// Иначе — текстовая подстановка каждого вхождения
	var b strings.Builder
	last := 0
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(s, -1) {
		start, end := loc[0], loc[1]
		expr := s[loc[2]:loc[3]]

		// Плейсхолдер синтаксически заключён в двойные кавычки шаблона?
		quoted := start > 0 && s[start-1] == '"' && end < len(s) && s[end] == '"'

		value, found := resolveExpression(expr, ec)

		b.WriteString(s[last:start])
		b.WriteString(renderResolved(value, found, quoted))
		last = end
	}
	b.WriteString(s[last:])

	return b.String()
}

// renderResolved сериализует разрешённое значение для вставки в шаблон.
//
// Внутри кавычек вставляется строковое содержимое с JSON-экранированием
// (без обрамляющих кавычек); вне кавычек — значение, которое само по
// себе валидно как встраиваемый JSON. Неразрешённая ссылка даёт пустую
// строку внутри кавычек и литерал "" вне их — окружающий шаблон
// остаётся синтаксически валидным JSON в обоих случаях.
func renderResolved(value any, found, quoted bool) string {
	if !found {
		if quoted {
			return ""
		}
		return `""`
	}

	if quoted {
		content, ok := value.(string)
		if !ok {
			raw, err := json.Marshal(value)
			if err != nil {
				return ""
			}
			content = string(raw)
		}
		escaped, err := json.Marshal(content)
		if err != nil {
			return ""
		}
		// Убираем обрамляющие кавычки: они уже есть в шаблоне
		return string(escaped[1 : len(escaped)-1])
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return `""`
	}
	return string(raw)
}

// resolveExpression разрешает одно выражение плейсхолдера.
//
// Стратегии пробуются по порядку, каждая возвращает (значение, найдено):
//  1. точное совпадение ключа контекста;
//  2. паттерн "Trigger <n>.<field>";
//  3. выбор лучшего ключа-префикса с обходом оставшегося пути,
//     включая fuzzy-поиск GPT-ключей по номеру.
//
// Выражение, оканчивающееся на ".response" и разрешившееся в объект,
// дополнительно разворачивается до "полезного" тела результата.
func resolveExpression(expr string, ec *ExecutionContext) (any, bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, false
	}

	value, found := lookupExpression(expr, ec)
	if found && strings.HasSuffix(expr, ".response") {
		value = unwrapResponse(value)
	}
	return value, found
}

func lookupExpression(expr string, ec *ExecutionContext) (any, bool) {
	// 1. Точный ключ
	if v, ok := ec.Get(expr); ok {
		return v, true
	}

	// 2. Trigger <n>.<field>
	if m := triggerRefRe.FindStringSubmatch(expr); m != nil {
		return resolveTriggerRef(m[2], ec)
	}

	// 3. <key>.<path...>
	return resolveKeyPath(expr, ec)
}

// resolveTriggerRef ищет поле триггера: сначала в корне контекста,
// затем в originalRequest, затем в каждом алиасе "Trigger *"
// (по возрастанию номера, нечисловые суффиксы в конце).
func resolveTriggerRef(path string, ec *ExecutionContext) (any, bool) {
	segments := strings.Split(path, ".")

	// Корень контекста
	if v, ok := traverse(ec.Values(), segments); ok {
		return v, true
	}

	// originalRequest
	if req, ok := ec.Get("originalRequest"); ok {
		if v, ok := traverse(req, segments); ok {
			return v, true
		}
	}

	// Алиасы "Trigger *"
	for _, key := range triggerAliasKeys(ec) {
		container, _ := ec.Get(key)
		m, ok := container.(map[string]any)
		if !ok {
			continue
		}
		if _, owns := m[segments[0]]; !owns {
			continue
		}
		return traverse(m, segments)
	}

	return nil, false
}

// triggerAliasKeys возвращает ключи вида "Trigger *" в порядке:
// числовые суффиксы по возрастанию, затем нечисловые в порядке вставки.
func triggerAliasKeys(ec *ExecutionContext) []string {
	type numbered struct {
		key string
		n   int
	}
	var withNum []numbered
	var withoutNum []string

	for _, key := range ec.Keys() {
		if !strings.HasPrefix(key, "Trigger ") {
			continue
		}
		suffix := strings.TrimPrefix(key, "Trigger ")
		if n, err := strconv.Atoi(suffix); err == nil {
			withNum = append(withNum, numbered{key, n})
		} else {
			withoutNum = append(withoutNum, key)
		}
	}

	// Сортировка вставками: ключей мало, стабильность важна
	for i := 1; i < len(withNum); i++ {
		for j := i; j > 0 && withNum[j].n < withNum[j-1].n; j-- {
			withNum[j], withNum[j-1] = withNum[j-1], withNum[j]
		}
	}

	keys := make([]string, 0, len(withNum)+len(withoutNum))
	for _, nk := range withNum {
		keys = append(keys, nk.key)
	}
	return append(keys, withoutNum...)
}

// resolveKeyPath трактует выражение как "<ключ>.<путь>": выбирает
// лучший ключ контекста, являющийся точным префиксом выражения
// с границей ".", и обходит остаток пути внутри его значения.
func resolveKeyPath(expr string, ec *ExecutionContext) (any, bool) {
	best := ""
	bestHasDigit := false

	for _, key := range ec.Keys() {
		if !strings.HasPrefix(expr, key+".") {
			continue
		}
		hasDigit := containsDigit(key)
		switch {
		case best == "":
			best, bestHasDigit = key, hasDigit
		case hasDigit && !bestHasDigit:
			// Ключи с цифрой выигрывают: "GPT 10" против "GPT 1"
			best, bestHasDigit = key, hasDigit
		case hasDigit == bestHasDigit && len(key) > len(best):
			best = key
		}
	}

	if best != "" {
		value, _ := ec.Get(best)
		rest := strings.TrimPrefix(expr, best+".")
		return traverse(value, strings.Split(rest, "."))
	}

	return resolveGPTFuzzy(expr, ec)
}

// resolveGPTFuzzy ищет GPT-ключ по номеру, когда точной границы ключа
// в выражении нет: "gpt3.result" должен найти ключ "GPT 3".
//
// Порядок предпочтения: точное "gpt N"/"gptN", точное
// "gpt task N"/"gpttaskN", ключ с номером по границе слова, ключ
// с внедрённым числовым токеном, равным N. Без запрошенного номера —
// первый GPT-ключ контекста.
func resolveGPTFuzzy(expr string, ec *ExecutionContext) (any, bool) {
	dot := strings.Index(expr, ".")
	if dot < 0 {
		return nil, false
	}
	head, rest := expr[:dot], expr[dot+1:]
	if !strings.Contains(strings.ToLower(head), "gpt") {
		return nil, false
	}

	segments := strings.Split(rest, ".")

	// GPT-ключи, владеющие первым сегментом пути как свойством
	var candidates []string
	for _, key := range ec.Keys() {
		if !strings.Contains(strings.ToLower(key), "gpt") {
			continue
		}
		container, _ := ec.Get(key)
		if m, ok := container.(map[string]any); ok {
			if _, owns := m[segments[0]]; owns {
				candidates = append(candidates, key)
			}
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	num := trailingNumberRe.FindString(head)
	num = strings.TrimSpace(num)
	if num == "" {
		// Номер не запрошен — первый GPT-ключ
		value, _ := ec.Get(candidates[0])
		return traverse(value, segments)
	}

	wordBoundary := regexp.MustCompile(`\b` + num + `\b`)

	pick := func(match func(string) bool) (any, bool) {
		for _, key := range candidates {
			if match(key) {
				value, _ := ec.Get(key)
				return traverse(value, segments)
			}
		}
		return nil, false
	}

	strategies := []func(string) bool{
		func(k string) bool { return normalizeKey(k) == "gpt"+num },
		func(k string) bool { return normalizeKey(k) == "gpttask"+num },
		func(k string) bool { return wordBoundary.MatchString(k) },
		func(k string) bool { return embeddedNumberEquals(k, num) },
	}
	for _, match := range strategies {
		if v, ok := pick(match); ok {
			return v, true
		}
	}

	return nil, false
}

// normalizeKey приводит ключ к нижнему регистру без пробелов.
func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), " ", "")
}

// embeddedNumberEquals проверяет, равен ли какой-либо числовой токен
// внутри ключа запрошенному номеру.
func embeddedNumberEquals(key, num string) bool {
	for _, token := range numberTokenRe.FindAllString(key, -1) {
		if token == num {
			return true
		}
	}
	return false
}

// containsDigit проверяет наличие цифры в строке.
func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// traverse обходит оставшийся пунктирный путь внутри значения.
// Любой отсутствующий сегмент прерывает разрешение: возвращается
// (nil, false), политика "пустого" значения применяется выше.
func traverse(value any, segments []string) (any, bool) {
	current := value
	for _, seg := range segments {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// unwrapResponse нормализует гетерогенные формы результатов задач
// к их "полезному" телу: вложенный http_response.body, затем body,
// затем response.body/response; объект-ошибка с EntityID и Message
// сворачивается до строки Message.
func unwrapResponse(value any) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}

	if hr, ok := m["http_response"].(map[string]any); ok {
		if body, ok := hr["body"]; ok {
			return body
		}
	}

	if body, ok := m["body"]; ok {
		return body
	}

	if resp, ok := m["response"]; ok {
		if rm, ok := resp.(map[string]any); ok {
			if body, ok := rm["body"]; ok {
				return body
			}
		}
		return resp
	}

	if _, hasEntity := m["EntityID"]; hasEntity {
		if msg, ok := m["Message"].(string); ok {
			return msg
		}
	}

	return m
}
