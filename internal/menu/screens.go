package menu

import "castbot/pkg/tgui"

const (
	channelURL  = "https://t.me/neyroph"
	managerURL  = "https://t.me/ManagerNeyroph"
	clubURL     = "https://t.me/close_channel_neyroph_bot"
	learningURL = "https://ai-avatar.ru/learning"
	privacyURL  = "https://docs.google.com/document/d/1XHFjqbDKYhX5am-Ni2uQOO_FaoQhOcLcq7-UiZyQNlE/edit?usp=drive_link"

	learnVideoID = "BAACAgIAAxkBAAOjaJQ14sNe900dE7DPLhQygUTwxRUAAg1oAAKfAqFIVvpOlsTmj_g2BA"
)

var (
	backRow    = []Button{{Text: "🔙 В главное меню", Data: ScreenData(Main)}}
	channelRow = []Button{{Text: "📺 Канал студии", URL: channelURL}}
	managerRow = []Button{{Text: "✉️ Написать в личку", URL: managerURL}}
)

// Default returns the studio bot screens.
func Default() *Menu {
	return New(
		Screen{
			ID: Consent,
			Text: "Привет! Прежде чем мы начнём...\n\n" +
				"⚠️ Мы заботимся о твоей конфиденциальности.\n\n" +
				"Нажимая кнопку «Согласен», ты подтверждаешь, что ознакомлен(-а) с " +
				tgui.Link("Политикой обработки персональных данных", privacyURL).String() +
				" и даёшь согласие на обработку персональных данных.\n\n" +
				"⬇️ Выбери вариант ниже:",
			Rows: [][]Button{
				{{Text: "✅ Согласен", Data: tgui.Data(ScopeConsent, ActionAgree, "")}},
				{{Text: "❌ Не согласен", Data: tgui.Data(ScopeConsent, ActionDecline, "")}},
			},
		},
		Screen{
			ID: Declined,
			Text: "Без согласия на обработку персональных данных мы не можем продолжить 😔\n\n" +
				"Если передумаешь, просто нажми /start.",
		},
		Screen{
			ID: Main,
			Text: "Привет, {name} 🥰\n\n" +
				"<b>На связи основатели студии NEYROPH и создатели Фаины Раевской — того самого AI-блогера №1 в России...</b>\n\n" +
				"Мы создаем ролики, от которых вы смеётесь, узнаёте себя, собирая большие охваты и внимание к бренду 🎮\n\n" +
				"Ниже варианты взаимодействия с нашей командой.\n" +
				"Нажимай на кнопку, чтобы узнать подробнее ⬇️",
			Rows: [][]Button{
				{{Text: "🎓 Обучение", Data: ScreenData(Learn)}},
				{{Text: "🎥 Заказать видео", Data: ScreenData(Video)}},
				{{Text: "🎭 Заказать персонажа", Data: ScreenData(Character)}},
				{{Text: "🤝 Сотрудничество / реклама", Data: ScreenData(Promo)}},
				channelRow,
			},
			AdminRows: [][]Button{
				{{Text: "📢 Сделать рассылку", Data: tgui.Data(ScopeBC, ActionStart, "")}},
			},
		},
		Screen{
			ID:    Learn,
			Video: learnVideoID,
			Text: "<b>📹 Здесь — видео, с которого всё начинается.</b>\n" +
				"<b>Познакомимся, расскажу, кто мы, как создаём ИИ-контент и как запустили самого популярного AI-блогера в России — Фаину Раевскую. </b> 🔥\n\n" +
				"Внутри ты узнаешь:\n" +
				"✅ 4 ключевых принципа, которые нужно учитывать при создании персонажа, чтобы собрать именно свою аудиторию;\n" +
				"✅ Как придумать образ, который зацепит, и почему имя — это уже половина успеха;\n" +
				"✅ Как такие проекты монетизируются и приносят деньги уже с первых тысяч подписчиков.\n\n" +
				"<b>🧠 И главное — расскажу, чему мы будем учить на обучении🤫</b>",
			Rows: [][]Button{
				{{Text: "📝 Запись на обучение", WebApp: learningURL}},
				{{Text: "🔐 Закрытый клуб", URL: clubURL}},
				channelRow,
				backRow,
			},
		},
		Screen{
			ID: Video,
			Text: "🎮 Мы — студия NEYROPH. Профессионально создаём видео-контент для брендов и экспертов.\n\n" +
				"🔥 Рекламные креативы, экспертные ролики, Reels на любую тему — делаем с душой и качеством.\n\n" +
				"Вы можете:\n— получить готовый ролик под задачу\n— обсудить сценарий и идею\n— довериться нашей команде полностью",
			Rows: [][]Button{channelRow, managerRow, backRow},
		},
		Screen{
			ID: Character,
			Text: "🎭 Мы можем создать персонажа для вас или вашего бренда так же мощно, как Фаину Раневскую:\n\n" +
				"💥 120 000 подписчиков за 1,5 месяца\n🎥 Десятки Reels — по млн просмотров\n\n" +
				"Такой формат идеально подходит для продвижения бренда, товара, проекта или инфопродукта!\n\n" +
				"Создаём как личный образ, так и бренд-персонажа.\n\n" +
				"💬 Напиши нам — обсудим, какой формат подойдёт тебе!",
			Rows: [][]Button{managerRow, backRow},
		},
		Screen{
			ID: Promo,
			Text: "🤝 Открыты к сотрудничеству и рекламным интеграциям.\n\n" +
				"Размещение у наших AI-персонажей, совместные проекты, спецпроекты для брендов.\n\n" +
				"💬 Напиши менеджеру — пришлём статистику и условия.",
			Rows: [][]Button{managerRow, channelRow, backRow},
		},
	)
}
